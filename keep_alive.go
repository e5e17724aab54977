package xmppcore

import (
	"time"
)

// keepAliveLoop sends whitespace over the stream when the connection has
// been idle for the configured interval. XMPP has no ping frame at the
// core layer; a single space keeps NAT mappings and dead-peer detection
// working without disturbing the XML stream.
func (c *Client) keepAliveLoop() {
	defer close(c.keepAliveDone)

	interval := c.options.keepAlive
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			last := time.Unix(c.lastActivity.Load(), 0)
			if time.Since(last) < interval {
				continue
			}
			if err := c.stream.sendKeepAlive(); err != nil {
				c.logger.Debug("keepalive write failed", LogFields{LogFieldError: err.Error()})
				return
			}
			c.touchActivity()
		}
	}
}

// touchActivity records the current time as the last moment traffic was
// written to the stream.
func (c *Client) touchActivity() {
	c.lastActivity.Store(time.Now().Unix())
}
