// Package memory provides an in-process snapshot store. Sessions do not survive a restart.
package memory
