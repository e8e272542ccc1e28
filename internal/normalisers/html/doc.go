// Package html normalises HTML pages such as saved country profiles into
// plain text using the golang.org/x/net/html tokenizer.
package html
