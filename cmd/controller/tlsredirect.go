package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// tlsHandshakeByte TLS 记录层 handshake 类型（ClientHello 的首字节）
const tlsHandshakeByte = 0x16

// redirectingListener 同一端口同时接受 HTTPS 和误发的纯 HTTP
//
// 纯 HTTP 请求收到 301 跳转到 https:// 后关闭，TLS 连接原样交给 http.Server。
type redirectingListener struct {
	net.Listener
}

func (l *redirectingListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		first := make([]byte, 1)
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, err = io.ReadFull(conn, first)
		conn.SetReadDeadline(time.Time{})
		if err != nil {
			conn.Close()
			continue
		}
		if first[0] == tlsHandshakeByte {
			return &peekedConn{Conn: conn, peeked: first}, nil
		}
		go redirectToHTTPS(&peekedConn{Conn: conn, peeked: first})
	}
}

// peekedConn 读取时先返回已窥视的字节
type peekedConn struct {
	net.Conn
	peeked []byte
}

func (c *peekedConn) Read(b []byte) (int, error) {
	if len(c.peeked) > 0 {
		n := copy(b, c.peeked)
		c.peeked = c.peeked[n:]
		return n, nil
	}
	return c.Conn.Read(b)
}

func redirectToHTTPS(conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	req, err := http.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		return
	}
	host := req.Host
	if host == "" {
		host = conn.LocalAddr().String()
	}
	if _, port, err := net.SplitHostPort(conn.LocalAddr().String()); err == nil && port != "443" {
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		host = net.JoinHostPort(host, port)
	}
	fmt.Fprintf(conn, "HTTP/1.1 301 Moved Permanently\r\nLocation: https://%s%s\r\nContent-Length: 0\r\nConnection: close\r\n\r\n",
		host, req.URL.RequestURI())
}
