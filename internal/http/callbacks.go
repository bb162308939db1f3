package http

import "net/http"

// ConnectedInfo describes the probed resource handed to Callbacks.Connected.
type ConnectedInfo struct {
	URL           string
	StatusCode    int
	ContentLength int64
	AcceptRanges  bool
	Header        http.Header
}

// Callbacks are optional hooks raised during a run. Progress is called from a
// single goroutine; the others are called from the goroutine running Download.
type Callbacks struct {
	Preparing  func()
	Connecting func(url string, attempt int)
	// Connected may veto the download by returning an error. The run then
	// fails without retrying.
	Connected        func(info ConnectedInfo) error
	DownloadStarted  func(contentLength int64)
	Progress         func(chunks map[int]ChunkSnapshot, total Progress)
	DownloadFinished func(bytesTransferred int64, code int, finalPath string)
	MergeStarted     func(chunkCount int)
	MergeProgress    func(chunkID, chunkCount int, position, size int64)
	MergeFinished    func(code int)
}

func (c *Callbacks) preparing() {
	if c.Preparing != nil {
		c.Preparing()
	}
}

func (c *Callbacks) connecting(url string, attempt int) {
	if c.Connecting != nil {
		c.Connecting(url, attempt)
	}
}

func (c *Callbacks) connected(info ConnectedInfo) error {
	if c.Connected == nil {
		return nil
	}

	return c.Connected(info)
}

func (c *Callbacks) downloadStarted(contentLength int64) {
	if c.DownloadStarted != nil {
		c.DownloadStarted(contentLength)
	}
}

func (c *Callbacks) progress(chunks map[int]ChunkSnapshot, total Progress) {
	if c.Progress != nil {
		c.Progress(chunks, total)
	}
}

func (c *Callbacks) downloadFinished(bytes int64, code int, finalPath string) {
	if c.DownloadFinished != nil {
		c.DownloadFinished(bytes, code, finalPath)
	}
}

func (c *Callbacks) mergeStarted(chunkCount int) {
	if c.MergeStarted != nil {
		c.MergeStarted(chunkCount)
	}
}

func (c *Callbacks) mergeProgress(chunkID, chunkCount int, position, size int64) {
	if c.MergeProgress != nil {
		c.MergeProgress(chunkID, chunkCount, position, size)
	}
}

func (c *Callbacks) mergeFinished(code int) {
	if c.MergeFinished != nil {
		c.MergeFinished(code)
	}
}
