// Command consolectl administers the console API from a terminal: it logs
// in, keeps the session in a local credential file and lists or edits the
// console's collections.
package main

func main() {
	Execute()
}
