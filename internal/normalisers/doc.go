// Package normalisers provides implementations of the Normaliser interface
// for the file formats found in a knowledge base corpus. Each normaliser
// knows how to extract text from files with particular extensions.
//
// Normalisers are collected in a Registry which the loader consults per file.
package normalisers
