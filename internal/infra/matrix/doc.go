// Package matrix talks to the Matrix homeserver: it logs the bot in and keeps
// its sync loop alive (Session), turns room messages into chat commands
// (Listener) and delivers alerts and replies through the transactional
// send-message endpoint (Client).
package matrix
