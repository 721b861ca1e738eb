package evidence

// Log is the "log" evidence family: an append-style measurement log (e.g. a
// UEFI event log or an IMA log) carrying an entry-count/format capability
// description and an opaque log body. Grounded on event_log.py's EventLog/
// EventLogCapabilities/EventLogData classes.
type Log struct {
	EvidenceType string
	Capabilities *LogCapabilities
	Data         *LogData
}

// LogCapabilities describes an agent's measurement log: how many entries it
// has, whether partial/windowed access and append-in-place are supported,
// and which MIME formats it can be rendered in.
type LogCapabilities struct {
	EntryCount            int
	SupportsPartialAccess bool
	Appendable            bool
	Formats               []string
}

// LogData is the collected log body.
type LogData struct {
	Entries string
}

func (l *Log) RenderSupported() map[string]any {
	if l.Capabilities == nil {
		return nil
	}
	return map[string]any{
		"evidence_class": "log",
		"evidence_type":  l.EvidenceType,
		"capabilities":   l.Capabilities.render(),
	}
}

func (l *Log) RenderCollected() map[string]any {
	if l.Data == nil {
		return nil
	}
	return map[string]any{
		"evidence_class": "log",
		"evidence_type":  l.EvidenceType,
		"data":           l.Data.render(),
	}
}

func (l *Log) Clone() Item {
	clone := *l
	if l.Capabilities != nil {
		caps := *l.Capabilities
		clone.Capabilities = &caps
	}
	if l.Data != nil {
		data := *l.Data
		clone.Data = &data
	}
	return &clone
}

func (lc *LogCapabilities) render() map[string]any {
	formats := lc.Formats
	if len(formats) == 0 {
		formats = []string{"text/plain"}
	}
	out := map[string]any{
		"entry_count": lc.EntryCount,
		"formats":     formats,
	}
	if lc.SupportsPartialAccess {
		out["supports_partial_access"] = true
	}
	if lc.Appendable {
		out["appendable"] = true
	}
	return out
}

func (ld *LogData) render() map[string]any {
	return map[string]any{
		"entries": ld.Entries,
	}
}
