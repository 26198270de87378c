package transport

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/segfront/ros"
)

func TestTopicDropsOldest(t *testing.T) {
	topic := NewTopic[int]("numbers")
	sub := topic.Subscribe()

	test.That(t, topic.Publish(1), test.ShouldBeNil)
	test.That(t, topic.Publish(2), test.ShouldBeNil)
	test.That(t, topic.Publish(3), test.ShouldBeNil)

	test.That(t, <-sub.C(), test.ShouldEqual, 3)
	select {
	case v := <-sub.C():
		t.Fatalf("unexpected message %d", v)
	default:
	}

	published, dropped := topic.Stats()
	test.That(t, published, test.ShouldEqual, uint64(3))
	test.That(t, dropped, test.ShouldEqual, uint64(2))

	latest, ok := topic.Latest()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, latest, test.ShouldEqual, 3)
}

func TestTopicFanOut(t *testing.T) {
	topic := NewTopic[string]("words")
	a, b := topic.Subscribe(), topic.Subscribe()
	test.That(t, topic.Publish("hi"), test.ShouldBeNil)
	test.That(t, <-a.C(), test.ShouldEqual, "hi")
	test.That(t, <-b.C(), test.ShouldEqual, "hi")

	b.Close()
	_, ok := <-b.C()
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, topic.Publish("again"), test.ShouldBeNil)
	test.That(t, <-a.C(), test.ShouldEqual, "again")
	// closing twice is fine
	b.Close()
}

func TestTopicClose(t *testing.T) {
	topic := NewTopic[int]("numbers")
	sub := topic.Subscribe()
	topic.Close()
	topic.Close()

	_, ok := <-sub.C()
	test.That(t, ok, test.ShouldBeFalse)
	err := topic.Publish(1)
	test.That(t, errors.Is(err, ErrTopicClosed), test.ShouldBeTrue)

	late := topic.Subscribe()
	_, ok = <-late.C()
	test.That(t, ok, test.ShouldBeFalse)
	sub.Close()
}

func TestForward(t *testing.T) {
	topic := NewTopic[int]("numbers")
	sub := topic.Subscribe()
	test.That(t, topic.Publish(7), test.ShouldBeNil)

	var got []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		Forward(context.Background(), sub, func(v int) {
			got = append(got, v)
			topic.Close()
		})
	}()
	<-done
	test.That(t, got, test.ShouldResemble, []int{7})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Forward(ctx, NewTopic[int]("idle").Subscribe(), func(int) { t.Fatal("unexpected call") })
}

func TestTopicsPublisher(t *testing.T) {
	topics := NewTopics("camera_0/image", "objects", "result_images")
	defer topics.Close()
	test.That(t, topics.Results.Name(), test.ShouldEqual, "objects")

	res := &ros.Result{Header: ros.Header{Seq: 1}}
	test.That(t, topics.PublishResult(context.Background(), res), test.ShouldBeNil)
	got, ok := topics.Results.Latest()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, got, test.ShouldEqual, res)

	img := ros.NewImage(ros.Header{}, 1, 1, ros.EncodingRGB8, []byte{1, 2, 3})
	test.That(t, topics.PublishVisualization(context.Background(), img), test.ShouldBeNil)
	gotImg, ok := topics.Visualization.Latest()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, gotImg, test.ShouldEqual, img)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	test.That(t, topics.PublishResult(ctx, res), test.ShouldNotBeNil)
}
