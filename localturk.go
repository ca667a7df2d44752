// Package localturk reads and updates the delimited text files behind a local
// task-review tool.
//
// # Reading
//
// [Reader] decodes comma-separated records with double-quote quoting: quoted
// fields may contain commas and line breaks, and a doubled quote stands for
// one quote character. [Rows] turns a file into a lazy stream of [Record]
// values that decodes input only as fast as it is consumed and releases the
// file as soon as consumption stops. [ReadRowObjects] zips every row with the
// header into a [RowObject].
//
// # Writing
//
// [Writer] quotes a field only when it contains the delimiter, the quote
// character or a line break. [WriteCSV] and the rewriting operations replace
// files atomically through a temporary sibling file.
//
// # Updating
//
// [AppendRow] appends one row in place when its keys match the header, and
// rewrites the file with extra trailing columns when they do not.
// [DeleteLastRow] removes the last record. Both keep the file's line ending,
// as reported by [DetectLineEnding].
//
// # Errors
//
// Malformed input is reported as a [*ParseError] wrapping [ErrBareQuote],
// [ErrUnterminatedQuote], [ErrTrailingQuote] or [ErrFieldCount]. Operations
// that need a header fail with [ErrEmptyFile] on files without records, and
// [DeleteLastRow] fails with [ErrNoRows]. Writing a record with no fields
// fails with [ErrEmptyRecord].
//
// A single process is assumed to be the only writer of a file.
package localturk
