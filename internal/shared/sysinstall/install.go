// Package sysinstall 以 systemd 服务方式安装控制器
//
// 创建服务用户与目录、写入 unit 文件并启用服务。安装路径与
// internal/config 的生产环境配置目录保持一致。
package sysinstall

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"
)

// ServiceName systemd 服务名
const ServiceName = "shongo-controller"

// Layout 安装布局
type Layout struct {
	User      string
	ConfigDir string
	DataDir   string
	LogDir    string
	UnitDir   string
}

// DefaultLayout 生产环境的默认布局
func DefaultLayout() Layout {
	return Layout{
		User:      "shongo",
		ConfigDir: "/etc/shongo",
		DataDir:   "/var/lib/shongo",
		LogDir:    "/var/log/shongo",
		UnitDir:   "/etc/systemd/system",
	}
}

// CertDir 本域证书目录（tls.cert_dir 的默认值）
func (l Layout) CertDir() string {
	return filepath.Join(l.ConfigDir, "certs")
}

// EnvFile 保存密钥的环境变量文件
func (l Layout) EnvFile() string {
	return filepath.Join(l.ConfigDir, ".env.prod")
}

// UnitPath unit 文件路径
func (l Layout) UnitPath() string {
	return filepath.Join(l.UnitDir, ServiceName+".service")
}

// directories 需要创建的目录及权限，证书目录只允许服务用户访问
func (l Layout) directories() []dirSpec {
	return []dirSpec{
		{l.ConfigDir, 0755},
		{l.CertDir(), 0700},
		{l.DataDir, 0750},
		{l.LogDir, 0750},
	}
}

type dirSpec struct {
	path string
	perm os.FileMode
}

// EnsureUser 创建系统用户（已存在时跳过）
func (l Layout) EnsureUser() error {
	if _, err := user.Lookup(l.User); err == nil {
		return nil
	}
	out, err := exec.Command("useradd", "--system", "--no-create-home", "--shell", "/usr/sbin/nologin", l.User).CombinedOutput()
	if err != nil {
		return fmt.Errorf("create system user %s: %v (%s)", l.User, err, strings.TrimSpace(string(out)))
	}
	log.Printf("[install] Created system user %s", l.User)
	return nil
}

// EnsureDirectories 创建目录并交给服务用户
func (l Layout) EnsureDirectories() error {
	u, lookupErr := user.Lookup(l.User)
	for _, d := range l.directories() {
		if err := os.MkdirAll(d.path, d.perm); err != nil {
			return fmt.Errorf("create directory %s: %w", d.path, err)
		}
		if err := os.Chmod(d.path, d.perm); err != nil {
			return fmt.Errorf("chmod %s: %w", d.path, err)
		}
		if lookupErr == nil && d.path != l.ConfigDir {
			if out, err := exec.Command("chown", "-R", u.Uid+":"+u.Gid, d.path).CombinedOutput(); err != nil {
				log.Printf("[install] chown %s failed: %v (%s)", d.path, err, strings.TrimSpace(string(out)))
			}
		}
	}
	return nil
}

// Unit 生成 systemd unit 文件内容
//
// after 为额外的启动依赖，如 "postgresql.service redis.service"。
func (l Layout) Unit(binaryPath, after string) string {
	deps := "network-online.target"
	if after != "" {
		deps += " " + after
	}
	return fmt.Sprintf(`[Unit]
Description=Shongo domain controller
After=%[1]s
Wants=network-online.target

[Service]
Type=simple
User=%[2]s
Group=%[2]s
Environment=APP_ENV=prod
EnvironmentFile=-%[3]s
ExecStart=%[4]s serve --config %[5]s
Restart=always
RestartSec=5
StartLimitBurst=5
StartLimitIntervalSec=60

NoNewPrivileges=true
ProtectSystem=strict
ProtectHome=true
ReadWritePaths=%[6]s %[7]s %[8]s
PrivateTmp=true

StandardOutput=journal
StandardError=journal
SyslogIdentifier=%[9]s

[Install]
WantedBy=multi-user.target
`, deps, l.User, l.EnvFile(), binaryPath, l.ConfigDir, l.CertDir(), l.DataDir, l.LogDir, ServiceName)
}

// InstallUnit 写入 unit 文件并 enable
func (l Layout) InstallUnit(content string) error {
	if err := os.WriteFile(l.UnitPath(), []byte(content), 0644); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}
	for _, args := range [][]string{{"daemon-reload"}, {"enable", ServiceName}} {
		if out, err := exec.Command("systemctl", args...).CombinedOutput(); err != nil {
			return fmt.Errorf("systemctl %s: %v (%s)", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
	}
	log.Printf("[install] Installed %s", l.UnitPath())
	return nil
}

// ExecutablePath 当前二进制的真实路径
func ExecutablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(exe); err == nil {
		return real, nil
	}
	return exe, nil
}

// IsRoot 是否以 root 运行
func IsRoot() bool {
	return os.Getuid() == 0
}

// HasSystemd 系统是否有 systemctl
func HasSystemd() bool {
	_, err := exec.LookPath("systemctl")
	return err == nil
}
