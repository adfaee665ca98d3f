package server

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"nines/internal/classify"
	"nines/internal/expression"
	"nines/internal/game"
	"nines/internal/model"
	"nines/internal/pipeline"
	"nines/internal/raster"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvaluator struct {
	res    expression.Result
	err    error
	buf    *raster.Buffer
	target int
}

func (f *fakeEvaluator) Evaluate(buf *raster.Buffer, target int) (expression.Result, pipeline.Recognition, error) {
	f.buf, f.target = buf, target
	rec := pipeline.Recognition{
		Expression: "9+9+9",
		Symbols: []classify.Symbol{
			{Symbol: "9", AnchorX: 3, Confidence: 0.9},
			{Symbol: "+", AnchorX: 20, Confidence: 0.8},
		},
	}
	return f.res, rec, f.err
}

func newTestRouter(ev Evaluator) (*gin.Engine, *game.Session) {
	gin.SetMode(gin.TestMode)
	session := game.NewSession(rand.New(rand.NewSource(3)))
	return NewRouter(NewHandler(ev, session)), session
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(&fakeEvaluator{})
	w := do(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTargetEndpoints(t *testing.T) {
	r, session := newTestRouter(&fakeEvaluator{})

	w := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/target", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got targetResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, session.Target(), got.Target)
	assert.Empty(t, got.Achieved)

	w = do(r, httptest.NewRequest(http.MethodPost, "/api/v1/target", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, session.Target(), got.Target)
	assert.LessOrEqual(t, got.Target, game.MaxTarget)
}

func TestEvaluateStrokes(t *testing.T) {
	value := 27.0
	ev := &fakeEvaluator{res: expression.Result{Valid: true, Message: expression.MsgCorrect, Value: &value}}
	r, session := newTestRouter(ev)

	body := `{"width":120,"height":60,"strokes":[[{"x":10,"y":10},{"x":20,"y":40}]],"view":{"zoom":5,"pan_x":0,"pan_y":0},"target":27}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := do(r, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, true, got["valid"])
	assert.Equal(t, "Correct!", got["message"])
	assert.Equal(t, 27.0, got["value"])
	assert.Equal(t, "9+9+9", got["expression"])
	assert.Len(t, got["symbols"], 2)

	require.NotNil(t, ev.buf)
	assert.Equal(t, 120, ev.buf.Width())
	assert.Equal(t, 60, ev.buf.Height())
	assert.Equal(t, 27, ev.target)
	assert.Equal(t, []int{27}, session.Achieved())
}

func TestEvaluateDefaultsToSessionTarget(t *testing.T) {
	ev := &fakeEvaluator{res: expression.Result{Message: expression.MsgWrongNineCount}}
	r, session := newTestRouter(ev)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", bytes.NewBufferString(`{"width":10,"height":10}`))
	req.Header.Set("Content-Type", "application/json")
	w := do(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, session.Target(), ev.target)
	assert.NotContains(t, w.Body.String(), `"value"`)
	assert.Empty(t, session.Achieved())
}

func TestEvaluateBadRequest(t *testing.T) {
	r, _ := newTestRouter(&fakeEvaluator{})

	for _, body := range []string{`{`, `{"width":0,"height":10}`, fmt.Sprintf(`{"width":%d,"height":10}`, MaxSide+1)} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := do(r, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestEvaluateModelUnavailable(t *testing.T) {
	ev := &fakeEvaluator{err: fmt.Errorf("%w: no such file", model.ErrModelLoad)}
	r, _ := newTestRouter(ev)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", bytes.NewBufferString(`{"width":10,"height":10}`))
	req.Header.Set("Content-Type", "application/json")
	w := do(r, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "Recognizer unavailable")
}

func multipartUpload(t *testing.T, img image.Image, target string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if target != "" {
		require.NoError(t, mw.WriteField("target", target))
	}
	if img != nil {
		fw, err := mw.CreateFormFile("file", "drawing.png")
		require.NoError(t, err)
		require.NoError(t, png.Encode(fw, img))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestEvaluateUpload(t *testing.T) {
	ev := &fakeEvaluator{res: expression.Result{Message: "Result: 729, Target: 42"}}
	r, _ := newTestRouter(ev)

	w := do(r, multipartUpload(t, image.NewGray(image.Rect(0, 0, 40, 30)), "42"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, ev.buf)
	assert.Equal(t, 40, ev.buf.Width())
	assert.Equal(t, 42, ev.target)

	w = do(r, multipartUpload(t, nil, "42"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, multipartUpload(t, image.NewGray(image.Rect(0, 0, 4, 4)), "forty"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvaluateUploadRejectsOversizedHeader(t *testing.T) {
	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewGray(image.Rect(0, 0, 1, 1))))
	data := img.Bytes()
	binary.BigEndian.PutUint32(data[16:20], 60000)
	binary.BigEndian.PutUint32(data[20:24], 60000)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "drawing.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	ev := &fakeEvaluator{}
	r, _ := newTestRouter(ev)
	w := do(r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "image too large")
	assert.Nil(t, ev.buf, "evaluator must not run")
}
