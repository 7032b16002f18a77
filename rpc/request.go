package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Request is a single command invocation. Build it with Client.Request and
// Option, then run it with one of Exec, Text, Send, Download, Stream or
// Upload. A Request must not be reused concurrently.
type Request struct {
	client  *Client
	command string
	args    []string
	opts    url.Values
}

// Option adds a key=value flag. Booleans are rendered as "true"/"false".
func (r *Request) Option(key string, value any) *Request {
	if r.opts == nil {
		r.opts = url.Values{}
	}
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case bool:
		if v {
			s = "true"
		} else {
			s = "false"
		}
	case time.Duration:
		s = v.String()
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	r.opts.Add(key, s)
	return r
}

// URL renders the full command URL. Positional arguments always precede
// flags; flags are sorted by key for stable output.
func (r *Request) URL() string {
	var b strings.Builder
	b.WriteString(r.client.apiURL)
	b.WriteString(apiPrefix)
	b.WriteString(r.command)

	sep := byte('?')
	for _, a := range r.args {
		b.WriteByte(sep)
		sep = '&'
		b.WriteString("arg=")
		b.WriteString(url.QueryEscape(a))
	}
	keys := make([]string, 0, len(r.opts))
	for k := range r.opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range r.opts[k] {
			b.WriteByte(sep)
			sep = '&'
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Send POSTs the command and returns the response body. The caller must
// close it.
func (r *Request) Send(ctx context.Context) (io.ReadCloser, error) {
	return r.do(ctx, http.MethodPost, nil, "")
}

// Download GETs the command and returns the raw response body. The caller
// must close it.
func (r *Request) Download(ctx context.Context) (io.ReadCloser, error) {
	return r.do(ctx, http.MethodGet, nil, "")
}

// Exec runs a unary command and decodes its JSON document into out. A nil
// out discards the body. An empty body leaves out untouched.
func (r *Request) Exec(ctx context.Context, out any) error {
	ctx, cancel := r.unaryContext(ctx)
	defer cancel()

	body, err := r.Send(ctx)
	if err != nil {
		return err
	}
	defer body.Close()
	return r.decode(body, out)
}

// Text runs a unary command and returns its body as a string.
func (r *Request) Text(ctx context.Context) (string, error) {
	ctx, cancel := r.unaryContext(ctx)
	defer cancel()

	body, err := r.Send(ctx)
	if err != nil {
		return "", err
	}
	defer body.Close()
	b, err := io.ReadAll(body)
	if err != nil {
		return "", requestError(r.command, 0, "", err)
	}
	return string(b), nil
}

// Stream runs a command whose response is newline-delimited JSON and calls
// fn with each non-blank line. Returning an error from fn stops the stream
// and that error is returned; returning ErrStopStream stops it cleanly.
func (r *Request) Stream(ctx context.Context, fn func(line json.RawMessage) error) error {
	body, err := r.Send(ctx)
	if err != nil {
		return err
	}
	defer body.Close()
	return ReadLines(body, fn)
}

// ErrStopStream can be returned by a Stream callback to end the stream
// without error.
var ErrStopStream = errors.New("rpc: stop stream")

// ReadLines feeds each non-blank line of an ndjson body to fn.
func ReadLines(body io.Reader, fn func(line json.RawMessage) error) error {
	br := bufio.NewReader(body)
	for {
		line, err := br.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if ferr := fn(json.RawMessage(trimmed)); ferr != nil {
				if errors.Is(ferr, ErrStopStream) {
					return nil
				}
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Upload POSTs content as a multipart "file" field. filename may be empty.
// The caller must close the returned body.
func (r *Request) Upload(ctx context.Context, content io.Reader, filename string) (io.ReadCloser, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		h := make(textproto.MIMEHeader)
		disposition := `form-data; name="file"`
		if filename != "" {
			disposition += fmt.Sprintf(`; filename="%s"`, url.PathEscape(filename))
		}
		h.Set("Content-Disposition", disposition)
		h.Set("Content-Type", "application/octet-stream")
		part, err := mw.CreatePart(h)
		if err == nil {
			_, err = io.Copy(part, content)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	body, err := r.do(ctx, http.MethodPost, pr, mw.FormDataContentType())
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, err
	}
	return body, nil
}

// UploadExec uploads content and decodes the JSON response into out.
func (r *Request) UploadExec(ctx context.Context, content io.Reader, filename string, out any) error {
	ctx, cancel := r.unaryContext(ctx)
	defer cancel()

	body, err := r.Upload(ctx, content, filename)
	if err != nil {
		return err
	}
	defer body.Close()
	return r.decode(body, out)
}

func (r *Request) unaryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.client.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.client.timeout)
}

func (r *Request) decode(body io.Reader, out any) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return requestError(r.command, 0, "", err)
	}
	if out == nil || len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return &Error{Kind: KindFormat, Command: r.command, Message: "decode response", Cause: err}
	}
	return nil
}

func (r *Request) do(ctx context.Context, method string, body io.Reader, contentType string) (io.ReadCloser, error) {
	u := r.URL()
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, requestError(r.command, 0, "", err)
	}
	req.Header.Set("User-Agent", r.client.userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := r.client.HTTPClient().Do(req)
	elapsed := time.Since(start)
	if err != nil {
		r.client.metrics.observe(r.command, 0, elapsed)
		r.client.logger.Debug("ipfs command failed", "command", r.command, "error", err)
		return nil, requestError(r.command, 0, "", err)
	}
	r.client.metrics.observe(r.command, resp.StatusCode, elapsed)
	r.client.logger.Debug("ipfs command", "command", r.command, "status", resp.StatusCode, "duration", elapsed)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Body, nil
	}
	defer resp.Body.Close()
	return nil, r.statusError(u, resp)
}

func (r *Request) statusError(u string, resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound {
		return requestError(r.command, resp.StatusCode, "Invalid IPFS command: "+u, nil)
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	msg := strings.TrimSpace(string(b))
	var doc struct {
		Message string `json:"Message"`
	}
	if json.Unmarshal(b, &doc) == nil && doc.Message != "" {
		msg = doc.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return requestError(r.command, resp.StatusCode, msg, nil)
}
