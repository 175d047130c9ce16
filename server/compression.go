package server

import (
	"bytes"
	"compress/gzip"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/valyala/fasthttp"
)

const (
	algorithmBrotli = "br"
	algorithmGzip   = "gzip"

	compressionLevel     = 6
	compressionThreshold = 1024
	minCompressionRatio  = 0.05
)

var (
	brotliBytes = []byte(algorithmBrotli)
	gzipBytes   = []byte(algorithmGzip)
)

// Compressor encodes JSON response bodies with brotli or gzip, picked
// from the request's Accept-Encoding. Bodies under the threshold and
// bodies that barely shrink are passed through untouched.
type Compressor struct {
	brotliPool sync.Pool
	gzipPool   sync.Pool
	bufferPool sync.Pool
}

func NewCompressor() *Compressor {
	return &Compressor{
		brotliPool: sync.Pool{
			New: func() interface{} {
				return brotli.NewWriterLevel(nil, compressionLevel)
			},
		},
		gzipPool: sync.Pool{
			New: func() interface{} {
				writer, _ := gzip.NewWriterLevel(nil, compressionLevel)
				return writer
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 4096))
			},
		},
	}
}

func (c *Compressor) Compress(ctx *fasthttp.RequestCtx) {
	body := ctx.Response.Body()
	if len(body) < compressionThreshold {
		return
	}
	if len(ctx.Response.Header.ContentEncoding()) > 0 {
		return
	}

	algorithm := c.negotiate(ctx.Request.Header.Peek(fasthttp.HeaderAcceptEncoding))
	if algorithm == "" {
		return
	}

	compressed, err := c.encode(algorithm, body)
	if err != nil {
		return
	}

	ratio := float64(len(compressed)) / float64(len(body))
	if 1.0-ratio < minCompressionRatio {
		return
	}

	ctx.Response.Header.SetContentEncoding(algorithm)
	ctx.Response.Header.Add(fasthttp.HeaderVary, fasthttp.HeaderAcceptEncoding)
	ctx.Response.SetBody(compressed)
}

func (c *Compressor) negotiate(acceptEncoding []byte) string {
	if bytes.Contains(acceptEncoding, brotliBytes) {
		return algorithmBrotli
	}
	if bytes.Contains(acceptEncoding, gzipBytes) {
		return algorithmGzip
	}
	return ""
}

func (c *Compressor) encode(algorithm string, body []byte) ([]byte, error) {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	var err error
	switch algorithm {
	case algorithmBrotli:
		writer := c.brotliPool.Get().(*brotli.Writer)
		writer.Reset(buf)
		_, err = writer.Write(body)
		if closeErr := writer.Close(); err == nil {
			err = closeErr
		}
		c.brotliPool.Put(writer)
	case algorithmGzip:
		writer := c.gzipPool.Get().(*gzip.Writer)
		writer.Reset(buf)
		_, err = writer.Write(body)
		if closeErr := writer.Close(); err == nil {
			err = closeErr
		}
		c.gzipPool.Put(writer)
	}

	if err != nil {
		return nil, err
	}

	return append([]byte(nil), buf.Bytes()...), nil
}
