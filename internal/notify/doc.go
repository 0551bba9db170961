// Package notify delivers claim notifications outside the claim
// transaction.
//
// The claim service hands committed events to a Dispatcher, which pushes
// them onto a Redis list without blocking the caller. A Worker drains the
// list, renders liquid templates and sends mail through a Mailer (SES in
// production, the log in development). Failed sends are retried up to a
// limit and then parked on a dead-letter list.
//
// ReminderSweep runs alongside the worker and enqueues one drop-off
// reminder per donor per campaign per day as the deadline approaches.
package notify
