package store_test

import (
	"testing"

	"github.com/warp/dues-engine/generic"
	"github.com/warp/dues-engine/generic/store"
	"github.com/warp/dues-engine/store/storetest"
)

func TestMemory_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) generic.TxStore {
		return store.NewMemory()
	})
}
