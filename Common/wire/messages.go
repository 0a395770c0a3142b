// Package wire defines the message records and RPC surfaces shared by every
// node role. All messages travel as JSON over gRPC unary calls.
package wire

// Request is a client query fanned out by the gateway to one or both team
// leaders. RequestID doubles as the session id once the gateway has accepted
// the request.
type Request struct {
	RequestID string `json:"request_id"`
	Query     string `json:"query"`
	NeedGreen bool   `json:"need_green"`
	NeedPink  bool   `json:"need_pink"`
}

// Ack is the generic acknowledgement for fire-and-forget style calls.
type Ack struct {
	OK bool `json:"ok"`
}

// Task is one contiguous row partition of a request. An empty task (no
// request id) means "nothing for you right now" on the pull path.
type Task struct {
	RequestID string `json:"request_id"`
	ChunkID   int    `json:"chunk_id"`
	StartRow  int64  `json:"start_row"`
	NumRows   int64  `json:"num_rows"`
	Dataset   string `json:"dataset"`
}

// IsEmpty reports whether the task carries no work.
func (t *Task) IsEmpty() bool {
	return t == nil || t.RequestID == ""
}

// TaskRequest is a worker's pull for its next task.
type TaskRequest struct {
	WorkerID string `json:"worker_id"`
}

// ChunkResult carries the extracted rows for one partition back up the tree.
// PartIndex is always the chunk id of the task that produced it.
type ChunkResult struct {
	RequestID string `json:"request_id"`
	PartIndex int    `json:"part_index"`
	Payload   []byte `json:"payload"`
}

// Heartbeat is the periodic liveness report a worker sends to its team
// leader. RecentTaskMs is zero until the worker has finished at least one
// task; QueueLen is the worker's own view and is recorded as telemetry only.
type Heartbeat struct {
	From          string  `json:"from"`
	TsUnixMs      int64   `json:"ts_unix_ms"`
	RecentTaskMs  float64 `json:"recent_task_ms"`
	QueueLen      int     `json:"queue_len"`
	CapacityScore int     `json:"capacity_score"`
}

// StatusRequest asks a node for its control-plane status.
type StatusRequest struct {
	From string `json:"from"`
}

// StatusResponse describes a node's current load.
type StatusResponse struct {
	NodeID            string `json:"node_id"`
	State             string `json:"state"`
	QueueSize         int    `json:"queue_size"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	RequestsProcessed int64  `json:"requests_processed"`
	MemoryBytes       uint64 `json:"memory_bytes"`
}

// ShutdownRequest asks a node to stop serving after DelaySeconds.
type ShutdownRequest struct {
	From         string `json:"from"`
	DelaySeconds int    `json:"delay_seconds"`
}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Acknowledged bool   `json:"acknowledged"`
	NodeID       string `json:"node_id"`
}

// StartResponse is the gateway's answer to Start: the session id the client
// uses for every follow-up call.
type StartResponse struct {
	SessionID   string `json:"session_id"`
	Accepted    bool   `json:"accepted"`
	Status      string `json:"status"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// NextChunkRequest fetches the chunk at Index, blocking until it exists or
// the session finishes.
type NextChunkRequest struct {
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
}

// NextChunkResponse returns one chunk. HasMore is false only when the
// session is complete and Index+1 is past the last buffered chunk.
type NextChunkResponse struct {
	SessionID string `json:"session_id"`
	Chunk     []byte `json:"chunk"`
	HasMore   bool   `json:"has_more"`
}

// PollRequest fetches the chunk at the session's server-side cursor without
// blocking.
type PollRequest struct {
	SessionID string `json:"session_id"`
}

// PollResponse returns the cursor chunk if one is ready. The cursor advances
// exactly once per ready response.
type PollResponse struct {
	SessionID string `json:"session_id"`
	Ready     bool   `json:"ready"`
	Chunk     []byte `json:"chunk"`
	HasMore   bool   `json:"has_more"`
}

// CloseRequest releases a session and its buffered chunks.
type CloseRequest struct {
	SessionID string `json:"session_id"`
}

// CloseResponse acknowledges a close. Success is true even for unknown
// sessions; close is idempotent.
type CloseResponse struct {
	Success bool `json:"success"`
}
