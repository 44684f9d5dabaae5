// Package menu is an ordered list of labelled items with a wrapping cursor
// and a windowed projection for displays shorter than the list.
package menu

import (
	"fmt"

	"github.com/temoto/robot-util/internal/container"
)

// Action is invoked on select with the item it belongs to.
type Action func(item *Item)

type Item struct {
	Label   string
	Action  Action
	Payload interface{}
	// Free releases Payload when item is removed or menu is destroyed.
	Free func()
}

func (self *Item) String() string { return fmt.Sprintf("menu.Item(%s)", self.Label) }

func (self *Item) free() {
	if self.Free != nil {
		self.Free()
		self.Free = nil
	}
}

// Menu is not safe for concurrent use, it belongs to UI thread.
type Menu struct {
	Title  string
	items  container.List[*Item]
	cursor int
	free   func()
}

func New(title string) *Menu {
	return &Menu{Title: title, cursor: -1}
}

func (self *Menu) Len() int { return self.items.Len() }

// Cursor returns -1 for empty menu.
func (self *Menu) Cursor() int { return self.cursor }

// SetCursor ignores out of range index.
func (self *Menu) SetCursor(i int) {
	if i >= 0 && i < self.items.Len() {
		self.cursor = i
	}
}

// SetFree registers destructor for data owned by menu itself, called once by Free.
func (self *Menu) SetFree(f func()) { self.free = f }

// Add appends item. First item receives cursor.
func (self *Menu) Add(label string, action Action, payload interface{}, free func()) *Item {
	item := &Item{Label: label, Action: action, Payload: payload, Free: free}
	self.items.Push(item)
	if self.cursor < 0 {
		self.cursor = 0
	}
	return item
}

func (self *Menu) Item(i int) *Item { return self.items.At(i) }

// Current returns item under cursor or nil.
func (self *Menu) Current() *Item {
	if self.cursor < 0 {
		return nil
	}
	return self.items.At(self.cursor)
}

func (self *Menu) CurrentLabel() (string, bool) {
	item := self.Current()
	if item == nil {
		return "", false
	}
	return item.Label, true
}

// Labels returns fresh copy.
func (self *Menu) Labels() []string {
	ls := make([]string, 0, self.items.Len())
	self.items.Each(func(_ int, item *Item) bool {
		ls = append(ls, item.Label)
		return true
	})
	return ls
}

// MoveCursor steps one item with wraparound.
func (self *Menu) MoveCursor(forward bool) {
	n := self.items.Len()
	if n == 0 {
		return
	}
	if forward {
		self.cursor = (self.cursor + 1) % n
	} else {
		self.cursor = (self.cursor - 1 + n) % n
	}
}

// Select runs action of item under cursor.
func (self *Menu) Select() {
	item := self.Current()
	if item == nil || item.Action == nil {
		return
	}
	item.Action(item)
}

// Remove deletes item i, releases its payload and keeps cursor on a live item.
func (self *Menu) Remove(i int) {
	if i < 0 || i >= self.items.Len() {
		return
	}
	item := self.items.RemoveAt(i)
	item.free()
	n := self.items.Len()
	switch {
	case n == 0:
		self.cursor = -1
	case i < self.cursor:
		self.cursor--
	case self.cursor >= n:
		self.cursor = n - 1
	}
}

// Clear removes all items, releasing payloads.
func (self *Menu) Clear() {
	for _, item := range self.items.Reset() {
		item.free()
	}
	self.cursor = -1
}

// Free destroys menu: items first, then menu's own data.
func (self *Menu) Free() {
	self.Clear()
	if self.free != nil {
		f := self.free
		self.free = nil
		f()
	}
}

// Window projects menu onto maxVisible rows.
// When everything fits, returns all labels and the true cursor index.
// Otherwise window starts one item before cursor (wrapping circularly)
// so cursor is always on row 1, with maxVisible=1 showing only the cursor item.
// Empty menu or maxVisible<=0 returns nil,-1.
func (self *Menu) Window(maxVisible int) ([]string, int) {
	n := self.items.Len()
	if n == 0 || maxVisible <= 0 {
		return nil, -1
	}
	if n <= maxVisible {
		return self.Labels(), self.cursor
	}
	if maxVisible == 1 {
		return []string{self.items.At(self.cursor).Label}, 0
	}
	start := (self.cursor - 1 + n) % n
	labels := make([]string, maxVisible)
	for row := 0; row < maxVisible; row++ {
		labels[row] = self.items.At((start + row) % n).Label
	}
	return labels, 1
}
