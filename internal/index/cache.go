package index

// nodeCache keeps every node touched since open, until close.
type nodeCache struct {
	// nodes is a sparse array where index = page number
	nodes []node
	size  int
}

func newNodeCache() *nodeCache {
	return &nodeCache{}
}

func (c *nodeCache) get(num uint32) (node, bool) {
	if int(num) >= len(c.nodes) || c.nodes[num] == nil {
		return nil, false
	}
	return c.nodes[num], true
}

func (c *nodeCache) put(n node) {
	num := n.pageNum()
	for len(c.nodes) <= int(num) {
		c.nodes = append(c.nodes, nil)
	}
	if c.nodes[num] == nil {
		c.size += 1
	}
	c.nodes[num] = n
}

// each visits cached nodes in page number order.
func (c *nodeCache) each(fn func(n node) error) error {
	for _, n := range c.nodes {
		if n == nil {
			continue
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}
