package cls

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// rolling log of the trade activity of the last 48 hours, served to admins
type ActivityLog struct {
	Logs []ActivityEntry `json:"activity"`
	Mtx  sync.Mutex
}

type ActivityEntry struct {
	Ts  time.Time
	Msg string
}

const activityRetention = 48 * time.Hour

func (al *ActivityLog) Logf(format string, args ...interface{}) {
	al.Mtx.Lock()
	defer al.Mtx.Unlock()

	msg := fmt.Sprintf(format, args...)
	tNow := time.Now().In(time.UTC)

	// append to the back, so a lower index means an older entry
	al.Logs = append(al.Logs, ActivityEntry{Ts: tNow, Msg: msg})

	// entries are in chronological order, so everything before the first
	// entry inside the cutoff is expired
	cutoff := tNow.Add(-activityRetention)
	for i := range al.Logs {
		if al.Logs[i].Ts.After(cutoff) {
			al.Logs = al.Logs[i:]
			break
		}
	}
}

// return the entries as a json array, with Ts as a unix timestamp
func (al *ActivityLog) Get() (string, error) {
	al.Mtx.Lock()
	defer al.Mtx.Unlock()

	transformed := make([]struct {
		Ts  int64  `json:"ts"`
		Msg string `json:"msg"`
	}, len(al.Logs))

	for i, entry := range al.Logs {
		transformed[i].Ts = entry.Ts.Unix()
		transformed[i].Msg = entry.Msg
	}

	jsonLogs, err := json.Marshal(transformed)
	if err != nil {
		return "", err
	}

	return string(jsonLogs), nil
}
