/*
Package bigram provides a bigram frequency model for next-word prediction.

A Model is built once from a corpus: the text is lowercased and split on
whitespace, then every word and every adjacent word pair is counted. Querying
a word returns the empirical distribution over the words observed to follow
it. Punctuation is kept as part of a token, so "mat." and "mat" are distinct.

For larger or long-lived corpora, a Store keeps the same tables in SQLite,
supports training from streams, and can materialize a Model on demand.
*/
package bigram
