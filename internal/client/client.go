package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"inverter-drive/internal/drive"
	protocol "inverter-drive/internal/protocol/drivelink"
)

// ErrRejected 服务端以错误标识应答
var ErrRejected = errors.New("client: request rejected")

// Client 是一个同步的 drivelink 客户端。请求等待同命令的应答,
// 期间收到的采样帧交给 OnSample。
type Client struct {
	conn    net.Conn
	sc      *bufio.Scanner
	Builder *PacketBuilder
	Timeout time.Duration

	OnSample func(*protocol.SampleData)
}

func Dial(ctx context.Context, addr, driveID string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, driveID), nil
}

func NewClient(conn net.Conn, driveID string) *Client {
	maxSize := protocol.HeaderLength + protocol.MaxDataLength + 1
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), maxSize)
	sc.Split(protocol.NewPacketScanner(maxSize).SplitFunc)
	return &Client{
		conn:    conn,
		sc:      sc,
		Builder: NewPacketBuilder(driveID),
		Timeout: 5 * time.Second,
	}
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) Send(frame []byte) error {
	_, err := c.conn.Write(frame)
	return err
}

// Next 读取下一帧
func (c *Client) Next() (*protocol.Packet, error) {
	if c.Timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.Timeout))
	}
	if !c.sc.Scan() {
		if err := c.sc.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("client: connection closed")
	}
	return protocol.Decode(append([]byte(nil), c.sc.Bytes()...))
}

// Request 发送请求并等待对应命令的应答
func (c *Client) Request(frame []byte, build error) (*protocol.Packet, error) {
	if build != nil {
		return nil, build
	}
	if err := c.Send(frame); err != nil {
		return nil, err
	}
	cmd := frame[2]
	for {
		pkt, err := c.Next()
		if err != nil {
			return nil, err
		}
		if pkt.Command == protocol.CmdSample && pkt.Response == protocol.RespCommand {
			c.deliver(pkt)
			continue
		}
		if pkt.Command != cmd {
			continue
		}
		if pkt.Response != protocol.RespOK {
			return pkt, fmt.Errorf("%w: command 0x%02X", ErrRejected, cmd)
		}
		return pkt, nil
	}
}

func (c *Client) deliver(pkt *protocol.Packet) {
	if c.OnSample == nil {
		return
	}
	if sd, err := protocol.ParseSampleData(pkt.DataUnit); err == nil {
		c.OnSample(sd)
	}
}

// ReadSamples 阻塞读取推送的采样直到 ctx 结束或连接出错。
// 读超时会终止 bufio.Scanner, 所以这里不设超时, ctx 结束时用过期 deadline 打断读取。
func (c *Client) ReadSamples(ctx context.Context) error {
	timeout := c.Timeout
	c.Timeout = 0
	defer func() { c.Timeout = timeout }()
	c.conn.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() { c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		pkt, err := c.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if pkt.Command == protocol.CmdSample {
			c.deliver(pkt)
		}
	}
}

func (c *Client) Login(username, password string) error {
	_, err := c.Request(c.Builder.BuildLogin(username, password))
	return err
}

func (c *Client) Subscribe(every uint16) error {
	_, err := c.Request(c.Builder.BuildSubscribe(every))
	return err
}

func (c *Client) Unsubscribe() error {
	_, err := c.Request(c.Builder.BuildUnsubscribe())
	return err
}

func (c *Client) Heartbeat() error {
	_, err := c.Request(c.Builder.BuildHeartbeat())
	return err
}

func (c *Client) SetParams(values map[string]string) error {
	_, err := c.Request(c.Builder.BuildSetParams(values))
	return err
}

func (c *Client) InjectFault(kind drive.FaultKind) error {
	_, err := c.Request(c.Builder.BuildInjectFault(kind))
	return err
}

func (c *Client) ClearFault() error {
	_, err := c.Request(c.Builder.BuildClearFault())
	return err
}

func (c *Client) ResetController() error {
	_, err := c.Request(c.Builder.BuildResetController())
	return err
}

func (c *Client) Status() (*protocol.StatusData, error) {
	pkt, err := c.Request(c.Builder.BuildStatus())
	if err != nil {
		return nil, err
	}
	return protocol.ParseStatus(pkt.DataUnit)
}
