package api

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/abipack/internal/report"
	"github.com/samcharles93/abipack/pkg/abi"
	"github.com/samcharles93/abipack/pkg/metadata"
)

func testBinary(t *testing.T) []byte {
	t.Helper()

	p := abi.New()
	if err := p.SetPipelineCode(make([]byte, 64)); err != nil {
		t.Fatalf("code: %v", err)
	}
	if err := p.AddPipelineSymbol(abi.PipelineSymbol{Type: abi.SymbolPsMainEntry, EntryType: elf.STT_FUNC, Section: abi.SectionCode, Size: 32}); err != nil {
		t.Fatalf("symbol: %v", err)
	}
	if err := p.AddGenericSymbol(abi.GenericSymbol{Name: "target", EntryType: elf.STT_FUNC, Section: abi.SectionCode, Value: 0x20}); err != nil {
		t.Fatalf("symbol: %v", err)
	}
	if err := p.AddRelocation(abi.SectionCode, abi.Relocation{Offset: 8, Symbol: "target", Type: abi.RelocAbs64, Addend: 4, Rela: true}); err != nil {
		t.Fatalf("relocation: %v", err)
	}
	var doc metadata.CodeObject
	doc.Pipeline.Name.Set("ps")
	if err := p.FinalizeMetadata(&doc); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	buf, err := p.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	return buf
}

func newTestEcho() *echo.Echo {
	server := NewServer(NewBinaryStore(), Options{MaxUploadBytes: 1 << 20})
	e := echo.New()
	server.Register(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, e *echo.Echo, data []byte) BinaryObject {
	t.Helper()
	rec := do(t, e, http.MethodPost, "/v1/binaries?name=ps.elf", echo.MIMEOctetStream, bytes.NewReader(data))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var obj BinaryObject
	if err := json.Unmarshal(rec.Body.Bytes(), &obj); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	return obj
}

func TestUploadGetDeleteLifecycle(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	data := testBinary(t)
	created := upload(t, e, data)
	if !strings.HasPrefix(created.ID, "bin_") || created.Name != "ps.elf" {
		t.Fatalf("created = %+v", created)
	}
	if created.Report == nil || created.Report.Size != len(data) {
		t.Fatalf("upload should include a report: %+v", created.Report)
	}

	getRec := do(t, e, http.MethodGet, "/v1/binaries/"+created.ID, "", nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status: got %d body=%s", getRec.Code, getRec.Body.String())
	}
	var got BinaryObject
	if err := json.Unmarshal(getRec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode get: %v", err)
	}
	if len(got.Report.Symbols) != 2 || got.Report.Symbols[0].Name != "_amdgpu_ps_main" {
		t.Fatalf("symbols = %+v", got.Report.Symbols)
	}

	listRec := do(t, e, http.MethodGet, "/v1/binaries", "", nil)
	var list BinaryList
	if err := json.Unmarshal(listRec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].ID != created.ID || list.Data[0].Report != nil {
		t.Fatalf("list = %+v", list)
	}

	contentRec := do(t, e, http.MethodGet, "/v1/binaries/"+created.ID+"/content", "", nil)
	if !bytes.Equal(contentRec.Body.Bytes(), data) {
		t.Fatal("content should round trip")
	}

	delRec := do(t, e, http.MethodDelete, "/v1/binaries/"+created.ID, "", nil)
	if delRec.Code != http.StatusOK {
		t.Fatalf("delete status: got %d body=%s", delRec.Code, delRec.Body.String())
	}
	if rec := do(t, e, http.MethodGet, "/v1/binaries/"+created.ID, "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: got %d", rec.Code)
	}
	if rec := do(t, e, http.MethodDelete, "/v1/binaries/"+created.ID, "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: got %d", rec.Code)
	}
}

func TestUploadRejectsInvalid(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	rec := do(t, e, http.MethodPost, "/v1/binaries", echo.MIMEOctetStream, bytes.NewReader(bytes.Repeat([]byte{7}, 100)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("junk upload: got %d body=%s", rec.Code, rec.Body.String())
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Error.Type != "invalid_binary_error" || body.Error.Message == "" {
		t.Fatalf("error body = %+v", body)
	}

	if rec := do(t, e, http.MethodPost, "/v1/binaries", echo.MIMEOctetStream, bytes.NewReader(nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty upload: got %d", rec.Code)
	}

	small := NewServer(nil, Options{MaxUploadBytes: 16})
	es := echo.New()
	small.Register(es)
	if rec := do(t, es, http.MethodPost, "/v1/binaries", echo.MIMEOctetStream, bytes.NewReader(testBinary(t))); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized upload: got %d", rec.Code)
	}
}

func TestMetadataAndSections(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	created := upload(t, e, testBinary(t))

	rec := do(t, e, http.MethodGet, "/v1/binaries/"+created.ID+"/metadata", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metadata status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var md report.Metadata
	if err := json.Unmarshal(rec.Body.Bytes(), &md); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if md.Name == nil || *md.Name != "ps" || md.Version != "2.6" {
		t.Fatalf("metadata = %+v", md)
	}

	raw := do(t, e, http.MethodGet, "/v1/binaries/"+created.ID+"/metadata?raw=1", "", nil)
	doc, err := metadata.Decode(raw.Body.Bytes())
	if err != nil {
		t.Fatalf("raw metadata: %v", err)
	}
	if name, _ := doc.Pipeline.Name.Get(); name != "ps" {
		t.Fatalf("raw name = %q", name)
	}

	text := do(t, e, http.MethodGet, "/v1/binaries/"+created.ID+"/sections/.text", "", nil)
	if text.Code != http.StatusOK || text.Body.Len() != 64 {
		t.Fatalf("text section: %d len=%d", text.Code, text.Body.Len())
	}
	if rec := do(t, e, http.MethodGet, "/v1/binaries/"+created.ID+"/sections/.bss", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing section: got %d", rec.Code)
	}
}

func TestRelocate(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	created := upload(t, e, testBinary(t))

	rec := do(t, e, http.MethodPost, "/v1/binaries/"+created.ID+"/relocate", echo.MIMEApplicationJSON,
		strings.NewReader(`{"target":"code","base":4096}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("relocate status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var out RelocateResp
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode relocate: %v", err)
	}
	if len(out.Data) != 64 {
		t.Fatalf("relocated length = %d", len(out.Data))
	}
	if got := binary.LittleEndian.Uint64(out.Data[8:]); got != 4096+0x20+4 {
		t.Fatalf("abs64 = %#x", got)
	}

	for _, body := range []string{`{"target":"comment"}`, `{"base":"x"}`, `{"bogus":1}`} {
		rec := do(t, e, http.MethodPost, "/v1/binaries/"+created.ID+"/relocate", echo.MIMEApplicationJSON, strings.NewReader(body))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d", body, rec.Code)
		}
	}
	if rec := do(t, e, http.MethodPost, "/v1/binaries/"+created.ID+"/relocate", echo.MIMEApplicationJSON, strings.NewReader(`{"target":"data"}`)); rec.Code != http.StatusNotFound {
		t.Fatalf("missing data section: got %d", rec.Code)
	}
}

func TestConcurrentReadsOfOneBinary(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	data := testBinary(t)
	created := upload(t, e, data)

	const readers = 8
	var wg sync.WaitGroup
	for i := range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path := "/v1/binaries/" + created.ID
			if i%2 == 1 {
				path += "/relocate"
				rec := do(t, e, http.MethodPost, path, echo.MIMEApplicationJSON, strings.NewReader(`{"base":4096}`))
				if rec.Code != http.StatusOK {
					t.Errorf("relocate %d: got %d body=%s", i, rec.Code, rec.Body.String())
				}
				return
			}
			rec := do(t, e, http.MethodGet, path, "", nil)
			if rec.Code != http.StatusOK {
				t.Errorf("get %d: got %d body=%s", i, rec.Code, rec.Body.String())
				return
			}
			var got BinaryObject
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Errorf("decode %d: %v", i, err)
				return
			}
			if got.Report == nil || len(got.Report.Symbols) != 2 || len(got.Report.Relocations) != 1 {
				t.Errorf("report %d = %+v", i, got.Report)
			}
		}()
	}
	wg.Wait()

	rec := do(t, e, http.MethodGet, "/v1/binaries/"+created.ID+"/content", "", nil)
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Fatal("stored binary changed after concurrent reads")
	}
}
