// Package transcript exports conversation histories as Markdown documents or
// standalone HTML pages. Assistant output is treated as Markdown and rendered
// to HTML with goldmark.
package transcript
