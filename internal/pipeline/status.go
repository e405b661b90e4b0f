package pipeline

import "fmt"

// ThreadStatus holds the counters of one stage.
type ThreadStatus struct {
	Name           string `json:"name"`
	SentRows       int64  `json:"sent_rows"`
	UnsentRows     int64  `json:"unsent_rows"`
	SendFailedRows int64  `json:"send_failed_rows"`
}

// Status is a snapshot of a writer. ThreadStatus[0] is the conversion
// stage, [1] the router, then one entry per sender.
type Status struct {
	IsExiting      bool           `json:"is_exiting"`
	ErrorCode      string         `json:"error_code,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	SentRows       int64          `json:"sent_rows"`
	UnsentRows     int64          `json:"unsent_rows"`
	SendFailedRows int64          `json:"send_failed_rows"`
	ThreadStatus   []ThreadStatus `json:"thread_status"`
}

// HasError reports whether the snapshot carries a sticky error.
func (s Status) HasError() bool {
	return s.ErrorCode != ""
}

func (s *Status) plus(ts ThreadStatus) {
	s.SentRows += ts.SentRows
	s.UnsentRows += ts.UnsentRows
	s.SendFailedRows += ts.SendFailedRows
	s.ThreadStatus = append(s.ThreadStatus, ts)
}

func (s Status) String() string {
	str := fmt.Sprintf("isExiting: %v\nsentRows: %d\nunsentRows: %d\nsendFailedRows: %d\n",
		s.IsExiting, s.SentRows, s.UnsentRows, s.SendFailedRows)
	if s.HasError() {
		str += fmt.Sprintf("errorCode: %s\nerrorMessage: %s\n", s.ErrorCode, s.ErrorMessage)
	}
	str += "threadStatus:\n\tname\tsentRows\tunsentRows\tsendFailedRows\n"
	for _, ts := range s.ThreadStatus {
		str += fmt.Sprintf("\t%s\t%d\t%d\t%d\n", ts.Name, ts.SentRows, ts.UnsentRows, ts.SendFailedRows)
	}
	return str
}
