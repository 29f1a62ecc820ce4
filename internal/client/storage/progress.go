package storage

import (
	"context"
	"io"
)

const copyBufferSize = 32 * 1024

// percent returns done/total as 0..100. total must be > 0.
func percent(done, total int64) int {
	p := int(done * 100 / total)
	if p > 100 {
		p = 100
	}
	return p
}

// CopyWithProgress copies src to dst, checking ctx before every chunk.
// With total > 0 progress is reported whenever the percentage changes;
// otherwise only 0 and 100 are reported.
func CopyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, onProgress ProgressFunc) (int64, error) {
	report := func(int) {}
	if onProgress != nil {
		report = onProgress
	}

	buf := make([]byte, copyBufferSize)
	var written int64
	last := -1

	if total <= 0 {
		report(0)
	}

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			if total > 0 {
				if p := percent(written, total); p != last {
					last = p
					report(p)
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, rerr
		}
	}

	if total <= 0 || last != 100 {
		report(100)
	}
	return written, nil
}

// ProgressReader reports upload progress as the wrapped reader is consumed.
// It passes Seek through when the underlying reader supports it so HTTP
// clients can rewind the body; rewinding resets the byte count.
type ProgressReader struct {
	r          io.Reader
	total      int64
	read       int64
	last       int
	onProgress ProgressFunc
}

func NewProgressReader(r io.Reader, total int64, onProgress ProgressFunc) *ProgressReader {
	return &ProgressReader{r: r, total: total, last: -1, onProgress: onProgress}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.onProgress != nil && p.total > 0 && n > 0 {
		if pc := percent(p.read, p.total); pc != p.last {
			p.last = pc
			p.onProgress(pc)
		}
	}
	return n, err
}

func (p *ProgressReader) Seek(offset int64, whence int) (int64, error) {
	s, ok := p.r.(io.Seeker)
	if !ok {
		return 0, io.ErrUnexpectedEOF
	}
	pos, err := s.Seek(offset, whence)
	if err == nil {
		p.read = pos
	}
	return pos, err
}
