package domain

import "time"

// StateDocument is the single persisted progress document, keyed by the
// ServiceKey string form. It is loaded once per run, mutated in memory, and
// written back atomically after each window completes.
type StateDocument map[string]*StateRecord

// Record returns the state record for key, creating an empty one on first use.
// Records are created by the pipeline and never deleted by it.
func (d StateDocument) Record(key ServiceKey) *StateRecord {
	rec, ok := d[key.String()]
	if !ok {
		rec = &StateRecord{}
		d[key.String()] = rec
	}
	return rec
}

// StateRecord tracks processing progress for one ServiceKey: the last fully
// processed window plus per-window contract outcomes. A contract for a given
// window lives in at most one of success/error at any time.
type StateRecord struct {
	LastProcessedWindow string                  `json:"last_processed_month,omitempty"`
	LastUpdated         string                  `json:"last_updated,omitempty"`
	SuccessContracts    map[string][]string     `json:"success_contracts,omitempty"`
	ErrorContracts      map[string][]ErrorEntry `json:"error_contracts,omitempty"`
}

// ErrorEntry records a contract whose submission failed terminally for a
// window. Payload preserves the exact attempted request so it can be
// resubmitted manually without recomputing aggregation. RetryCount is
// monotonically non-decreasing and capped at the configured maximum; at the
// cap the entry is terminal until externally cleared.
type ErrorEntry struct {
	ContractID    string           `json:"contract_id"`
	Errors        []string         `json:"errors"`
	Code          string           `json:"code,omitempty"`
	Message       string           `json:"message,omitempty"`
	RetryCount    int              `json:"retry_count"`
	LastRetryTime string           `json:"last_retry_time,omitempty"`
	Payload       *MeteringPayload `json:"payload,omitempty"`
}

// LastWindow parses the last processed window. ok is false when the record has
// never completed a window.
func (r *StateRecord) LastWindow() (w Window, ok bool, err error) {
	if r.LastProcessedWindow == "" {
		return Window{}, false, nil
	}
	w, err = ParseWindow(r.LastProcessedWindow)
	if err != nil {
		return Window{}, false, err
	}
	return w, true, nil
}

// SetLastWindow advances the last processed window. Windows never regress:
// moving backwards requires a manual state edit, not this method.
func (r *StateRecord) SetLastWindow(w Window, now time.Time) {
	r.LastProcessedWindow = w.Key()
	r.touch(now)
}

// HasSucceeded reports whether the contract is recorded as successfully
// submitted for the window.
func (r *StateRecord) HasSucceeded(w Window, contractID string) bool {
	for _, id := range r.SuccessContracts[w.Key()] {
		if id == contractID {
			return true
		}
	}
	return false
}

// MarkSuccess records a successful submission and clears any prior error entry
// for the contract, keeping the one-of-success-or-error invariant.
func (r *StateRecord) MarkSuccess(w Window, contractID string, now time.Time) {
	r.removeError(w, contractID)
	if r.HasSucceeded(w, contractID) {
		r.touch(now)
		return
	}
	if r.SuccessContracts == nil {
		r.SuccessContracts = make(map[string][]string)
	}
	r.SuccessContracts[w.Key()] = append(r.SuccessContracts[w.Key()], contractID)
	r.touch(now)
}

// FindError returns the contract's error entry for the window, if any.
func (r *StateRecord) FindError(w Window, contractID string) (ErrorEntry, bool) {
	for _, e := range r.ErrorContracts[w.Key()] {
		if e.ContractID == contractID {
			return e, true
		}
	}
	return ErrorEntry{}, false
}

// PutError upserts an error entry for the window. An existing entry keeps its
// accumulated error history: new errors are appended and the code, message,
// retry count and retry time are replaced. A preserved payload is never
// overwritten by a payload-less entry.
func (r *StateRecord) PutError(w Window, entry ErrorEntry, now time.Time) {
	if r.ErrorContracts == nil {
		r.ErrorContracts = make(map[string][]ErrorEntry)
	}
	entries := r.ErrorContracts[w.Key()]
	for i, e := range entries {
		if e.ContractID == entry.ContractID {
			entry.Errors = append(e.Errors, entry.Errors...)
			if entry.RetryCount < e.RetryCount {
				entry.RetryCount = e.RetryCount
			}
			if entry.Payload == nil {
				entry.Payload = e.Payload
			}
			entries[i] = entry
			r.touch(now)
			return
		}
	}
	r.ErrorContracts[w.Key()] = append(entries, entry)
	r.touch(now)
}

// ClearError removes the contract's error entry for the window, dropping the
// window bucket when it empties.
func (r *StateRecord) ClearError(w Window, contractID string, now time.Time) {
	if r.removeError(w, contractID) {
		r.touch(now)
	}
}

func (r *StateRecord) removeError(w Window, contractID string) bool {
	entries, ok := r.ErrorContracts[w.Key()]
	if !ok {
		return false
	}
	kept := entries[:0]
	removed := false
	for _, e := range entries {
		if e.ContractID == contractID {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return false
	}
	if len(kept) == 0 {
		delete(r.ErrorContracts, w.Key())
	} else {
		r.ErrorContracts[w.Key()] = kept
	}
	return true
}

func (r *StateRecord) touch(now time.Time) {
	r.LastUpdated = now.UTC().Format(time.RFC3339)
}
