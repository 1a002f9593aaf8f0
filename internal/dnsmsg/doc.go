// Package dnsmsg encodes resolver queries and decodes resolver answers.
//
// Queries are built with github.com/miekg/dns. Answers are decoded by a
// hand-written parser over a bounds-checked cursor: every field read checks the
// remaining length first, and the cursor never moves past the end of the
// message. Decode follows the classic BSD getanswer() rules (CNAME chasing,
// case-insensitive owner matching, 35-entry alias and address lists) and has no
// proxy knowledge.
package dnsmsg
