// Package notify delivers due reminders computed by the sweep.
//
// Two adapters exist: a structured-log notifier (the default, useful
// for dry runs and development) and a Telegram notifier that posts to
// a fixed chat.
package notify
