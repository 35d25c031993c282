package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// CartSessions hands out one CartStore per cart ID. Carts left idle are
// dropped by Sweep.
type CartSessions struct {
	mu    sync.Mutex
	carts map[string]*CartStore
	// onCreate runs for every new store, outside the registry lock
	onCreate func(*CartStore)
}

func NewCartSessions(onCreate func(*CartStore)) *CartSessions {
	return &CartSessions{
		carts:    make(map[string]*CartStore),
		onCreate: onCreate,
	}
}

// Open returns the cart for id. Unknown or empty IDs get a fresh cart with a
// newly minted ID; created reports which case happened.
func (c *CartSessions) Open(id string) (cart *CartStore, created bool) {
	c.mu.Lock()
	if cart, ok := c.carts[id]; ok && id != "" {
		c.mu.Unlock()
		cart.touch()
		return cart, false
	}
	cart = NewCartStore(uuid.NewString())
	c.carts[cart.ID()] = cart
	c.mu.Unlock()

	if c.onCreate != nil {
		c.onCreate(cart)
	}
	return cart, true
}

// Lookup returns the cart for id without creating one.
func (c *CartSessions) Lookup(id string) (*CartStore, bool) {
	c.mu.Lock()
	cart, ok := c.carts[id]
	c.mu.Unlock()
	if ok {
		cart.touch()
	}
	return cart, ok
}

func (c *CartSessions) Drop(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.carts, id)
}

// Sweep drops every cart not opened or changed since cutoff and returns how
// many it dropped.
func (c *CartSessions) Sweep(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, cart := range c.carts {
		if cart.LastActive().Before(cutoff) {
			delete(c.carts, id)
			n++
		}
	}
	return n
}

func (c *CartSessions) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.carts)
}
