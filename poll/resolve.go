package poll

import "tmpmurcia-notifier/pkg/notifier"

// FilterMonitored keeps every general alert and every alert whose line at
// least one subscriber follows, preserving page order. Filtering happens
// before diffing on purpose: an alert nobody cares about never enters
// history, so it is re-evaluated fresh if someone subscribes to its line
// later while it is still on the page.
func FilterMonitored(alerts []*notifier.Alert, monitoredLines map[string]bool) []*notifier.Alert {
	var kept []*notifier.Alert
	for _, a := range alerts {
		if a.General() || monitoredLines[a.Line] {
			kept = append(kept, a)
		}
	}
	return kept
}

// DiffNew returns the alerts whose ID is not yet in history, preserving
// order. An ID already in history is never re-notified, whatever position it
// resurfaces at.
func DiffNew(alerts []*notifier.Alert, seen map[string]bool) []*notifier.Alert {
	var fresh []*notifier.Alert
	for _, a := range alerts {
		if !seen[a.ID] {
			fresh = append(fresh, a)
		}
	}
	return fresh
}
