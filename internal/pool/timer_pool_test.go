package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerPool(t *testing.T) {
	assert := assert.New(t)

	t.Run("Get and Put", func(t *testing.T) {
		timer1 := GetTimer(10 * time.Millisecond)
		assert.NotNil(timer1)

		PutTimer(timer1)

		timer2 := GetTimer(20 * time.Millisecond)
		assert.NotNil(timer2)

		<-timer2.C
	})

	t.Run("Reused timer fires with the new duration", func(t *testing.T) {
		timer1 := GetTimer(time.Hour)
		PutTimer(timer1)

		begin := time.Now()
		timer2 := GetTimer(50 * time.Millisecond)

		select {
		case <-timer2.C:
			assert.Less(time.Since(begin), time.Second)
		case <-time.After(2 * time.Second):
			t.Error("reused timer kept its old duration")
		}

		PutTimer(timer2)
	})

	t.Run("Put active timer drains it", func(t *testing.T) {
		timer1 := GetTimer(10 * time.Millisecond)
		time.Sleep(30 * time.Millisecond) // let it fire before Put

		PutTimer(timer1)

		timer2 := GetTimer(50 * time.Millisecond)

		select {
		case <-timer2.C:
			// fired on the fresh duration, not a stale tick
		case <-time.After(2 * time.Second):
			t.Error("timer never fired")
		}
	})
}
