// Package linearize computes the parameters and hint tables of a
// linearized ("Fast Web View") PDF file.
//
// The package does not move objects around. A document writer serializes
// the document once to learn object offsets and lengths, feeds them to an
// Analyzer to classify objects into first-page, shared and page-specific
// groups, fills the HintTables from the measured layout and finally takes
// the parameter dictionary and hint stream bytes from a Builder. Because
// those bytes live near the start of the file, the writer has to reserve
// room for them (or rewrite the file) once their final size is known.
package linearize
