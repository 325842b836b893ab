// Package screen drives the host screen-lock primitive.
//
// The lock command is resolved per operating system. On Linux a running
// locker daemon (xscreensaver, light-locker, gnome-screensaver) is preferred
// over loginctl. A configured override command always wins.
package screen
