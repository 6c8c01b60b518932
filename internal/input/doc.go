// Package input turns decoded commands into injected pointer and keyboard
// events. Dispatcher is the capability handed to the command receiver; the
// Backend behind it does the actual injection.
package input
