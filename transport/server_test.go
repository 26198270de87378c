package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lmittmann/ppm"
	"go.viam.com/test"
	goutils "go.viam.com/utils"

	"go.viam.com/segfront/logging"
	"go.viam.com/segfront/ros"
	"go.viam.com/segfront/testutils"
)

func newTestServer(t *testing.T) (*Topics, *httptest.Server) {
	t.Helper()
	topics := NewTopics("in", "objects", "result_images")
	s := NewServer(logging.NewTestLogger(t), topics, func() interface{} {
		return map[string]int{"processed": 3}
	})
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		s.Close()
		ts.Close()
		topics.Close()
	})
	return topics, ts
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	//nolint:gosec,noctx
	resp, err := http.Get(url)
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	test.That(t, err, test.ShouldBeNil)
	return resp.StatusCode, body
}

func TestServerLatest(t *testing.T) {
	topics, ts := newTestServer(t)

	code, _ := get(t, ts.URL+"/results/latest")
	test.That(t, code, test.ShouldEqual, http.StatusNotFound)
	code, _ = get(t, ts.URL+"/visualization.ppm")
	test.That(t, code, test.ShouldEqual, http.StatusNotFound)

	res := &ros.Result{
		Header:   ros.Header{Seq: 5, Token: "abc"},
		Boxes:    []ros.RegionOfInterest{{XOffset: 1, YOffset: 2, Width: 3, Height: 4}},
		Masks:    []ros.Image{*ros.NewImage(ros.Header{}, 2, 1, ros.EncodingMono8, []byte{0, 255})},
		ClassIDs: []int32{3},
		Scores:   []float32{0.5},
	}
	test.That(t, topics.Results.Publish(res), test.ShouldBeNil)
	code, body := get(t, ts.URL+"/results/latest")
	test.That(t, code, test.ShouldEqual, http.StatusOK)
	var got ros.Result
	test.That(t, json.Unmarshal(body, &got), test.ShouldBeNil)
	test.That(t, got.Header.Token, test.ShouldEqual, "abc")
	test.That(t, got.Boxes, test.ShouldResemble, res.Boxes)
	test.That(t, got.Masks[0].Data, test.ShouldResemble, []byte{0, 255})

	vis := ros.NewImage(ros.Header{}, 2, 1, ros.EncodingRGB8, []byte{255, 0, 0, 0, 0, 255})
	test.That(t, topics.Visualization.Publish(vis), test.ShouldBeNil)
	code, body = get(t, ts.URL+"/visualization.ppm")
	test.That(t, code, test.ShouldEqual, http.StatusOK)
	img, err := ppm.Decode(bytes.NewReader(body))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 2)
	r, g, b, _ := img.At(0, 0).RGBA()
	test.That(t, color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), 255}, test.ShouldResemble,
		color.RGBA{255, 0, 0, 255})

	code, body = get(t, ts.URL+"/stats")
	test.That(t, code, test.ShouldEqual, http.StatusOK)
	test.That(t, strings.TrimSpace(string(body)), test.ShouldEqual, `{"processed":3}`)
}

func TestServerWebsocket(t *testing.T) {
	topics, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/results"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	test.That(t, err, test.ShouldBeNil)
	defer conn.Close()
	defer resp.Body.Close()

	// the subscription is registered after the upgrade, publish until the client sees one
	test.That(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)), test.ShouldBeNil)
	received := make(chan ros.Result, 1)
	go func() {
		var res ros.Result
		if err := conn.ReadJSON(&res); err == nil {
			received <- res
		}
		close(received)
	}()
	var got ros.Result
	for waiting := true; waiting; {
		test.That(t, topics.Results.Publish(&ros.Result{Header: ros.Header{Seq: 42}}), test.ShouldBeNil)
		select {
		case res, ok := <-received:
			test.That(t, ok, test.ShouldBeTrue)
			got = res
			waiting = false
		case <-time.After(10 * time.Millisecond):
		}
	}
	test.That(t, got.Header.Seq, test.ShouldEqual, uint32(42))
}

func TestServerListenAndServe(t *testing.T) {
	topics := NewTopics("in", "objects", "result_images")
	defer topics.Close()
	s := NewServer(logging.NewTestLogger(t), topics, nil)

	port, err := goutils.TryReserveRandomPort()
	test.That(t, err, test.ShouldBeNil)
	address := fmt.Sprintf("localhost:%d", port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.ListenAndServe(ctx, address)
	}()
	test.That(t, testutils.WaitSuccessfulDial(address), test.ShouldBeNil)

	code, _ := get(t, "http://"+address+"/stats")
	test.That(t, code, test.ShouldEqual, http.StatusNotFound)

	cancel()
	test.That(t, <-done, test.ShouldBeNil)
	s.Close()
}

func TestServerClose(t *testing.T) {
	topics := NewTopics("in", "objects", "result_images")
	defer topics.Close()
	s := NewServer(logging.NewTestLogger(t), topics, nil)
	ts := httptest.NewServer(s)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/results"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	test.That(t, err, test.ShouldBeNil)
	defer conn.Close()
	defer resp.Body.Close()

	// Close waits for the open stream and the stream ends for the client
	s.Close()
	test.That(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)), test.ShouldBeNil)
	_, _, err = conn.ReadMessage()
	test.That(t, err, test.ShouldNotBeNil)

	_, resp2, err := websocket.DefaultDialer.Dial(url, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, resp2, test.ShouldNotBeNil)
	defer resp2.Body.Close()
	test.That(t, resp2.StatusCode, test.ShouldEqual, http.StatusServiceUnavailable)

	test.That(t, s.ListenAndServe(context.Background(), "localhost:0"), test.ShouldEqual, ErrServerClosed)
	// closing twice is fine
	s.Close()
}
