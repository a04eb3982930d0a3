package main

import (
	"log"
	"strings"

	"shongo-controller/pkg/logging"
)

// serverErrorWriter 把 http.Server 的错误日志转为结构化日志
//
// 对端域未携带证书、浏览器不信任自签名证书时会产生大量 "TLS handshake error"，按 debug 级别输出。
type serverErrorWriter struct {
	logger *logging.Logger
}

func (w *serverErrorWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if strings.Contains(msg, "TLS handshake error") {
		w.logger.Debug(msg)
		return len(p), nil
	}
	w.logger.Warn(msg)
	return len(p), nil
}

func newServerErrorLog(logger *logging.Logger) *log.Logger {
	return log.New(&serverErrorWriter{logger: logger}, "", 0)
}
