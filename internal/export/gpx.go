package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
)

// countTrackpoints scans a GPX document for trkpt elements. An activity
// recorded indoors produces a valid GPX with zero trackpoints, so the count
// is reported rather than enforced.
func countTrackpoints(data []byte) (int, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	count := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return 0, fmt.Errorf("parsing GPX: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok && start.Name.Local == "trkpt" {
			count++
		}
	}
}
