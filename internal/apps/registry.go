// Package apps maps human app names to platform package identifiers.
package apps

import (
	"sort"
	"strings"
)

// Android package ids keyed by the names the model is likely to produce.
var androidPackages = map[string]string{
	"settings":  "com.android.settings",
	"chrome":    "com.android.chrome",
	"camera":    "com.android.camera",
	"gallery":   "com.android.gallery3d",
	"clock":     "com.android.deskclock",
	"calendar":  "com.android.calendar",
	"contacts":  "com.android.contacts",
	"messages":  "com.google.android.apps.messaging",
	"phone":     "com.android.dialer",
	"files":     "com.android.documentsui",
	"gmail":     "com.google.android.gm",
	"maps":      "com.google.android.apps.maps",
	"youtube":   "com.google.android.youtube",
	"play store": "com.android.vending",
	"wechat":    "com.tencent.mm",
	"weixin":    "com.tencent.mm",
	"微信":        "com.tencent.mm",
	"qq":        "com.tencent.mobileqq",
	"taobao":    "com.taobao.taobao",
	"淘宝":        "com.taobao.taobao",
	"alipay":    "com.eg.android.AlipayGphone",
	"支付宝":       "com.eg.android.AlipayGphone",
	"douyin":    "com.ss.android.ugc.aweme",
	"抖音":        "com.ss.android.ugc.aweme",
	"douyin lite": "com.ss.android.ugc.aweme.lite",
	"抖音极速版":     "com.ss.android.ugc.aweme.lite",
	"bilibili":  "tv.danmaku.bili",
	"哔哩哔哩":      "tv.danmaku.bili",
	"weibo":     "com.sina.weibo",
	"微博":        "com.sina.weibo",
	"xiaohongshu": "com.xingin.xhs",
	"小红书":       "com.xingin.xhs",
	"meituan":   "com.sankuai.meituan",
	"美团":        "com.sankuai.meituan",
	"jd":        "com.jingdong.app.mall",
	"京东":        "com.jingdong.app.mall",
	"pinduoduo": "com.xunmeng.pinduoduo",
	"拼多多":       "com.xunmeng.pinduoduo",
	"netease cloud music": "com.netease.cloudmusic",
	"网易云音乐":     "com.netease.cloudmusic",
	"amap":      "com.autonavi.minimap",
	"高德地图":      "com.autonavi.minimap",
	"dianping":  "com.dianping.v1",
	"大众点评":      "com.dianping.v1",
	"zhihu":     "com.zhihu.android",
	"知乎":        "com.zhihu.android",
	"ctrip":     "ctrip.android.view",
	"携程":        "ctrip.android.view",
}

// HarmonyOS bundle names. Launching additionally needs the entry ability,
// which is the conventional EntryAbility for every bundle listed here.
var harmonyBundles = map[string]string{
	"settings": "com.huawei.hmos.settings",
	"设置":       "com.huawei.hmos.settings",
	"camera":   "com.huawei.hmos.camera",
	"相机":       "com.huawei.hmos.camera",
	"gallery":  "com.huawei.hmos.photos",
	"图库":       "com.huawei.hmos.photos",
	"browser":  "com.huawei.hmos.browser",
	"浏览器":      "com.huawei.hmos.browser",
	"notes":    "com.huawei.hmos.notepad",
	"备忘录":      "com.huawei.hmos.notepad",
	"calendar": "com.huawei.hmos.calendar",
	"日历":       "com.huawei.hmos.calendar",
	"clock":    "com.huawei.hmos.deskclock",
	"时钟":       "com.huawei.hmos.deskclock",
	"files":    "com.huawei.hmos.filemanager",
	"文件管理":     "com.huawei.hmos.filemanager",
	"music":    "com.huawei.hmos.music",
	"音乐":       "com.huawei.hmos.music",
}

// Platform selects one of the registries.
type Platform string

const (
	PlatformAndroid   Platform = "android"
	PlatformHarmonyOS Platform = "harmonyos"
)

func registry(p Platform) map[string]string {
	if p == PlatformHarmonyOS {
		return harmonyBundles
	}
	return androidPackages
}

// Resolve maps an app name to its package or bundle id. Lookup is
// case-insensitive and ignores surrounding whitespace. When the name is
// unknown it is returned unchanged: the model sometimes emits a raw package
// id directly, and the launch failure surface is clearer downstream.
func Resolve(p Platform, name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if pkg, ok := registry(p)[key]; ok {
		return pkg, true
	}
	return name, false
}

// Names lists the known app names for a platform, sorted for stable output.
func Names(p Platform) []string {
	reg := registry(p)
	names := make([]string, 0, len(reg))
	for name := range reg {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the registered id for a known name without the raw-id
// fallback Resolve applies.
func Lookup(p Platform, name string) (string, bool) {
	pkg, ok := registry(p)[strings.ToLower(strings.TrimSpace(name))]
	return pkg, ok
}
