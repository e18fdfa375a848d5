package preprocessor

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexInfo summarizes the structure of a parsed Intel HEX stream. The
// anomaly detector turns these observations into tags; parsing itself
// never fails hard on malformed input.
type HexInfo struct {
	HasEOF       bool
	RecordCount  int
	FormatErrors []string
}

const (
	recordTypeData = 0x00
	recordTypeEOF  = 0x01
)

// NormalizeHex parses Intel HEX text and extracts the concatenated data
// payload (record type 00). Addresses, record types and checksums are
// excluded from the payload so comparison focuses on the program bytes.
// Checksums are still verified and any structural defect is collected in
// the returned HexInfo.
//
// Record layout: :LLAAAATT[DD...]CC
func NormalizeHex(content string) ([]byte, HexInfo) {
	var payload []byte
	var info HexInfo

	for i, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || !strings.HasPrefix(line, ":") {
			continue
		}

		record, err := hex.DecodeString(line[1:])
		if err != nil {
			info.FormatErrors = append(info.FormatErrors, fmt.Sprintf("line %d: invalid hex characters", i+1))
			continue
		}
		if len(record) < 5 {
			info.FormatErrors = append(info.FormatErrors, fmt.Sprintf("line %d: record too short", i+1))
			continue
		}

		byteCount := int(record[0])
		recordType := record[3]
		if len(record) != 5+byteCount {
			info.FormatErrors = append(info.FormatErrors, fmt.Sprintf("line %d: length field %d does not match record size", i+1, byteCount))
			continue
		}

		var sum byte
		for _, b := range record {
			sum += b
		}
		if sum != 0 {
			info.FormatErrors = append(info.FormatErrors, fmt.Sprintf("line %d: checksum mismatch", i+1))
			continue
		}

		info.RecordCount++

		switch recordType {
		case recordTypeData:
			payload = append(payload, record[4:4+byteCount]...)
		case recordTypeEOF:
			info.HasEOF = true
		}
	}

	return payload, info
}
