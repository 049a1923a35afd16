//go:build linux

package main

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
)

// LinuxProvisioner Linux 網路配置器
type LinuxProvisioner struct {
	BaseProvisioner
	link netlink.Link
}

func newPlatformProvisioner(interfaceName string, logger *zap.Logger) NetworkProvisioner {
	return &LinuxProvisioner{
		BaseProvisioner: BaseProvisioner{
			InterfaceName: interfaceName,
			Logger:        logger,
		},
	}
}

// netlinkAddr 轉成 netlink 的 /32 位址
func netlinkAddr(addr netip.Addr) *netlink.Addr {
	ip := addr.AsSlice()
	return &netlink.Addr{
		IPNet: &net.IPNet{
			IP:   net.IP(ip),
			Mask: net.CIDRMask(8*len(ip), 8*len(ip)),
		},
	}
}

// Setup 設置虛擬 IP (使用 netlink)
func (p *LinuxProvisioner) Setup(ctx context.Context, ranges []IPRange) error {
	// 驗證
	if err := p.Validate(ranges); err != nil {
		return err
	}

	// 取得網路介面
	link, err := netlink.LinkByName(p.InterfaceName)
	if err != nil {
		return fmt.Errorf("找不到網路介面 %s: %w", p.InterfaceName, err)
	}
	p.link = link

	// 展開 IP 範圍
	addrs, err := p.expandAllRanges(ranges)
	if err != nil {
		return fmt.Errorf("展開 IP 範圍失敗: %w", err)
	}

	p.Logger.Info("正在設置虛擬 IP",
		zap.String("interface", p.InterfaceName),
		zap.Int("count", len(addrs)),
	)

	// 添加 IP
	successCount := 0
	for _, addr := range addrs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := netlink.AddrAdd(link, netlinkAddr(addr)); err != nil {
			// 如果 IP 已存在，忽略錯誤
			if err.Error() == "file exists" {
				p.Logger.Debug("IP 已存在", zap.String("ip", addr.String()))
				successCount++
				p.ConfiguredAddrs = append(p.ConfiguredAddrs, addr)
				continue
			}
			p.Logger.Warn("添加 IP 失敗",
				zap.String("ip", addr.String()),
				zap.Error(err),
			)
			continue
		}

		successCount++
		p.ConfiguredAddrs = append(p.ConfiguredAddrs, addr)
		p.Logger.Debug("已添加 IP", zap.String("ip", addr.String()))
	}

	p.Logger.Info("虛擬 IP 設置完成",
		zap.Int("success", successCount),
		zap.Int("total", len(addrs)),
	)

	return nil
}

// Teardown 移除虛擬 IP
func (p *LinuxProvisioner) Teardown(ctx context.Context) error {
	if p.link == nil {
		link, err := netlink.LinkByName(p.InterfaceName)
		if err != nil {
			return fmt.Errorf("找不到網路介面 %s: %w", p.InterfaceName, err)
		}
		p.link = link
	}

	p.Logger.Info("正在移除虛擬 IP",
		zap.String("interface", p.InterfaceName),
		zap.Int("count", len(p.ConfiguredAddrs)),
	)

	removedCount := 0
	for _, addr := range p.ConfiguredAddrs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := netlink.AddrDel(p.link, netlinkAddr(addr)); err != nil {
			p.Logger.Warn("移除 IP 失敗",
				zap.String("ip", addr.String()),
				zap.Error(err),
			)
			continue
		}

		removedCount++
		p.Logger.Debug("已移除 IP", zap.String("ip", addr.String()))
	}

	p.ConfiguredAddrs = nil

	p.Logger.Info("虛擬 IP 移除完成",
		zap.Int("removed", removedCount),
	)

	return nil
}

// List 列出已配置的 IP
func (p *LinuxProvisioner) List(ctx context.Context) ([]netip.Addr, error) {
	link, err := netlink.LinkByName(p.InterfaceName)
	if err != nil {
		return nil, fmt.Errorf("找不到網路介面 %s: %w", p.InterfaceName, err)
	}

	nlAddrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("列出 IP 失敗: %w", err)
	}

	var addrs []netip.Addr
	for _, nlAddr := range nlAddrs {
		if ip4 := nlAddr.IP.To4(); ip4 != nil {
			if a, ok := netip.AddrFromSlice(ip4); ok {
				addrs = append(addrs, a)
			}
		}
	}

	return addrs, nil
}
