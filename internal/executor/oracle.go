package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nlsql/gateway/internal/domain"
)

// OracleDriver executes SQL against a long-lived SQL*Cl subprocess over
// line-delimited JSON-RPC (spec §4.6). A reader goroutine drains stdout
// and delivers each response to the pending call via a response map keyed
// by request id; the process's first BannerLines lines of startup output
// are discarded before the reader starts treating lines as JSON-RPC.
type OracleDriver struct {
	BannerLines int

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	nextID  int64
	pending map[int64]chan oracleResponse
}

type oracleRequest struct {
	ID             int64             `json:"id"`
	Method         string            `json:"method"`
	Params         map[string]any    `json:"params"`
	TraceContext   map[string]string `json:"_trace_context,omitempty"`
}

type oracleResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// NewOracleDriver starts the SQL*Cl subprocess with the given command and
// arguments, skipping bannerLines lines of startup banner before treating
// stdout as a JSON-RPC stream.
func NewOracleDriver(command string, args []string, bannerLines int) (*OracleDriver, error) {
	cmd := exec.Command(command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	d := &OracleDriver{
		BannerLines: bannerLines,
		cmd:         cmd,
		stdin:       stdin,
		pending:     make(map[int64]chan oracleResponse),
	}
	go d.readLoop(stdout)
	return d, nil
}

func (d *OracleDriver) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	skipped := 0
	for scanner.Scan() {
		if skipped < d.BannerLines {
			skipped++
			continue
		}
		var resp oracleResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}
		d.mu.Lock()
		ch, ok := d.pending[resp.ID]
		if ok {
			delete(d.pending, resp.ID)
		}
		d.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (d *OracleDriver) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	id := atomic.AddInt64(&d.nextID, 1)
	ch := make(chan oracleResponse, 1)

	d.mu.Lock()
	d.pending[id] = ch
	d.mu.Unlock()

	req := oracleRequest{ID: id, Method: method, Params: params}
	if traceID, ok := ctx.Value(traceContextKey{}).(string); ok {
		req.TraceContext = map[string]string{"trace_id": traceID}
	}

	line, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	_, werr := d.stdin.Write(append(line, '\n'))
	d.mu.Unlock()
	if werr != nil {
		return nil, werr
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return nil, fmt.Errorf("oracle subprocess error: %s", resp.Error)
		}
		return resp.Result, nil
	case <-ctx.Done():
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
		return nil, ctx.Err()
	}
}

// traceContextKey is the context key the caller uses to inject the
// current distributed-trace id, forwarded as _trace_context (spec §4.6).
type traceContextKey struct{}

// ContextWithTraceID returns a context carrying traceID for OracleDriver
// calls to forward to the subprocess.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceContextKey{}, traceID)
}

func (d *OracleDriver) Execute(ctx context.Context, sql string, timeout time.Duration) (domain.ExecutionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	raw, err := d.call(ctx, "execute", map[string]any{"sql": sql})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return domain.ExecutionResult{Status: domain.ExecutionTimeout}, err
		}
		return domain.ExecutionResult{Status: domain.ExecutionError}, err
	}

	var payload struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.ExecutionResult{Status: domain.ExecutionError}, err
	}

	return domain.ExecutionResult{
		Columns:         payload.Columns,
		Rows:            payload.Rows,
		RowCount:        len(payload.Rows),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Status:          domain.ExecutionSuccess,
	}, nil
}

// Cancel kills the Oracle session via ALTER SYSTEM KILL SESSION,
// sessionID being "<sid>,<serial#>".
func (d *OracleDriver) Cancel(ctx context.Context, sessionID string) error {
	_, err := d.call(ctx, "cancel", map[string]any{"session_id": sessionID})
	return err
}

func (d *OracleDriver) Describe(ctx context.Context, table string) ([]domain.Column, error) {
	raw, err := d.call(ctx, "describe", map[string]any{"table": table})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Columns []struct {
			Name     string `json:"name"`
			Type     string `json:"type"`
			Nullable bool   `json:"nullable"`
		} `json:"columns"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	cols := make([]domain.Column, 0, len(payload.Columns))
	for _, c := range payload.Columns {
		cols = append(cols, domain.Column{
			Name:            c.Name,
			Type:            c.Type,
			Nullable:        c.Nullable,
			RequiresQuoting: domain.ComputeRequiresQuoting(c.Name),
		})
	}
	return cols, nil
}

// Close terminates the subprocess.
func (d *OracleDriver) Close() error {
	_ = d.stdin.Close()
	return d.cmd.Wait()
}
