package normalize

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/couchcryptid/hydrofetch/internal/domain"
)

// MergeChunks concatenates chunk bodies into one body with a single header.
// The header rows come from the first chunk that has one; each chunk's own
// comment lines and header rows are dropped. Chunks are expected in request
// order; callers sort the parsed series afterwards.
func MergeChunks(chunks [][]byte, d domain.Descriptor) []byte {
	headerRows := max(d.HeaderRows, 1)
	sep := ","
	if d.Format == domain.FormatRDB {
		sep = "\t"
	}

	var header []string
	var data []string
	for _, c := range chunks {
		lines := contentLines(c)
		if len(lines) == 0 {
			continue
		}
		first := strings.SplitN(lines[0], sep, 2)[0]
		if IsSentinel(first) {
			data = append(data, lines...)
			continue
		}
		n := min(headerRows, len(lines))
		if header == nil {
			header = lines[:n]
		}
		data = append(data, lines[n:]...)
	}

	var buf bytes.Buffer
	for _, l := range header {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	for _, l := range data {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func contentLines(body []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
