package rendering

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"time"
)

// ArchiveCompressionLevel balances archive size against assembly time.
const ArchiveCompressionLevel = 6

// ArchiveEntry is one file placed in a results archive.
type ArchiveEntry struct {
	Name string
	Data []byte
}

// BuildArchive writes entries into a ZIP archive in the given order. Repeated
// names are disambiguated with _2, _3 suffixes. modified stamps every entry
// so identical inputs produce identical archives.
func BuildArchive(entries []ArchiveEntry, modified time.Time) ([]byte, error) {
	if len(entries) == 0 {
		return nil, &ArchiveError{Message: "no documents to archive"}
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	names = UniqueNames(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, ArchiveCompressionLevel)
	})

	for i, e := range entries {
		if names[i] == "" {
			_ = zw.Close()
			return nil, &ArchiveError{Message: fmt.Sprintf("entry %d has no name", i)}
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     names[i],
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			_ = zw.Close()
			return nil, &ArchiveError{Message: fmt.Sprintf("failed to add %s", names[i]), Cause: err}
		}
		if _, err := w.Write(e.Data); err != nil {
			_ = zw.Close()
			return nil, &ArchiveError{Message: fmt.Sprintf("failed to write %s", names[i]), Cause: err}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, &ArchiveError{Message: "failed to finalize archive", Cause: err}
	}
	return buf.Bytes(), nil
}

// ArchiveName names the results archive for a run.
func ArchiveName(runDate time.Time) string {
	return fmt.Sprintf("contracts_%s.zip", runDate.Format("2006-01-02"))
}
