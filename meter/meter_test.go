package meter

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// fakeCmd builds a (*link.Link).Command-shaped function from a table of
// exact request/reply pairs.
func fakeCmd(table map[string][]byte) func([]byte) ([]byte, error) {
	return func(req []byte) ([]byte, error) {
		reply, ok := table[string(req)]
		if !ok {
			return nil, errors.New("fakeCmd: unscripted request % x")
		}
		return reply, nil
	}
}

func TestReadVersion(t *testing.T) {
	reply := append(append([]byte{}, versionTag...), []byte("P02.00.0025/05/07")...)
	c := New(fakeCmd(map[string][]byte{string(versionRequest): reply}))

	got, err := c.ReadVersion()
	if err != nil {
		t.Fatalf("ReadVersion: %v", err)
	}
	if got != "P02.00.0025/05/07" {
		t.Errorf("ReadVersion = %q, want %q", got, "P02.00.0025/05/07")
	}
}

func TestReadSerial(t *testing.T) {
	reply := append(append([]byte{}, serialTag...), []byte("C176SA0O0")...)
	c := New(fakeCmd(map[string][]byte{string(serialRequest): reply}))

	got, err := c.ReadSerial()
	if err != nil {
		t.Fatalf("ReadSerial: %v", err)
	}
	if got != "C176SA0O0" {
		t.Errorf("ReadSerial = %q, want %q", got, "C176SA0O0")
	}
}

func TestReadRTC(t *testing.T) {
	want := meterEpoch.Add(400 * 24 * time.Hour)
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, uint32(want.Sub(meterEpoch).Seconds()))
	reply := append(append([]byte{}, rtcTag...), body...)

	c := New(fakeCmd(map[string][]byte{string(rtcRequest): reply}))

	got, err := c.ReadRTC()
	if err != nil {
		t.Fatalf("ReadRTC: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("ReadRTC = %v, want %v", got, want)
	}
}

func TestNumRecords(t *testing.T) {
	body := []byte{0x2a, 0x00} // 42, little-endian
	reply := append(append([]byte{}, countTag...), body...)
	c := New(fakeCmd(map[string][]byte{string(countRequest): reply}))

	n, err := c.NumRecords()
	if err != nil {
		t.Fatalf("NumRecords: %v", err)
	}
	if n != 42 {
		t.Errorf("NumRecords = %d, want 42", n)
	}
}

func TestRecordDecodesDateAndReading(t *testing.T) {
	rawDate := uint32(1000000)
	rawReading := uint32(900) // 900/180 = 5.0 mmol/l

	body := make([]byte, 8)
	binary.LittleEndian.PutUint32(body[0:4], rawDate)
	binary.LittleEndian.PutUint32(body[4:8], rawReading)

	req := append(append([]byte{}, countTag...), byte(3), byte(3>>8))
	reply := append(append([]byte{}, countTag...), body...)

	c := New(fakeCmd(map[string][]byte{string(req): reply}))

	rec, err := c.Record(3)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.RawDate != rawDate || rec.RawReading != rawReading {
		t.Fatalf("Record raw fields = %+v", rec)
	}
	if rec.MmolPerLitre != 5.0 {
		t.Errorf("Record.MmolPerLitre = %v, want 5.0", rec.MmolPerLitre)
	}
	wantDate := meterEpoch.Add(time.Duration(rawDate) * time.Second)
	if !rec.Date.Equal(wantDate) {
		t.Errorf("Record.Date = %v, want %v", rec.Date, wantDate)
	}
}

func TestUnexpectedTagIsRejected(t *testing.T) {
	c := New(fakeCmd(map[string][]byte{string(versionRequest): []byte{0xff, 0xff}}))
	if _, err := c.ReadVersion(); err == nil {
		t.Fatal("ReadVersion with wrong tag: want error, got nil")
	}
}

func TestTrimTagRejectsShortReply(t *testing.T) {
	c := New(fakeCmd(nil))
	if _, err := c.trimTag(countTag, countTag); err != nil {
		t.Fatalf("trimTag with exact-tag reply: %v", err)
	}
	if _, err := c.trimTag([]byte{0x00}, countTag); err == nil {
		t.Fatal("trimTag with mismatched reply: want error, got nil")
	}
}
