// Package restart schedules a process restart after the unit set changes.
//
// Go plugins stay mapped for the life of the process, so a unit that was
// updated or uninstalled keeps its code resident until restart. The default
// ProcessRestarter notifies systemd (STOPPING=1) and exits; the supervisor
// brings the host back and startup reconciliation loads the new unit set.
// Noop leaves the process running and relies on in-process handler swap.
package restart
