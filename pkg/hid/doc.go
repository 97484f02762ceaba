// Package hid encodes and decodes hierarchical identifiers.
//
// # Format
//
// A hierarchical id is a sequence of levels. Each level is a single type
// character followed by the textual value and the Delimiter:
//
//	{T1}{V1}.{T2}{V2}.        open form (a prefix; more levels may follow)
//	{T1}{V1}.{T2}{V2}..       closed form (terminal)
//
// Values are stored verbatim, so a prefix built from the leading levels plus
// the type character and the first bytes of the last value matches every
// closed id that starts with it under plain string comparison. This is what
// lets the pending-request index answer "all requests of client C whose id
// starts with p" with a range scan.
//
// # Usage
//
//	b := hid.NewBuilder()
//	_ = b.Add('C', "CL1")
//	key, _ := b.Build('I', "I-1-1;") // "CCL1.II-1-1;.."
//	base := b.Prefix()               // "CCL1."
//
//	k, _ := hid.Decode(key)
//	k.Len()      // 2
//	k.String(1)  // "I-1-1;"
//
// Decoding is only needed when the typed fields must be recovered; matching is
// done on the raw strings.
package hid
