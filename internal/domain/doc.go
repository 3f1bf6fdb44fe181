// Package domain models earthquake alert messages posted by Japanese
// early-warning accounts and the rules used to decide whether they are
// spoken aloud.
//
// # Publishers
//
// Two accounts are recognized. Each posts a fixed free-text layout.
//
// yurekuru (Yurekuru Call) separates fields with ASCII spaces and labels
// each field with a full-width colon. Intensity is written in full-width
// digits:
//
//	[EEW] ID：ND20211219064135 SEQ：final 震源地：静岡県中部 緯度：35.0 経度：138.4
//	震源深さ：10km 発生日時：2021/12/19 06:41:31 マグニチュード：3.4 最大震度：３ #yurekuru
//
//	token 3  → "震源地：<epicenter>"
//	token 10 → "最大震度：<intensity>"
//
// earthquake_jp (JMA relay) separates fields with ideographic spaces (U+3000)
// and annotates values with full-width parentheses:
//
//	【気象庁情報】12日　12時31分頃　茨城県南部（N36.1/E139.9）にて　最大震度3（M5）の地震が発生。
//
//	token 0 → header; "速報" marks a preliminary estimate and is never announced
//	token 2 → "<epicenter>（<coordinates>）にて"
//	token 3 → "最大震度<intensity>（M<magnitude>）..."
//
// # Intensity
//
// The tier is the first run of ASCII digits in the intensity field, so
// "5弱" and "5強" both read as 5 and "不明" (unknown) reads as 0. Tiers at or
// above MinNotifyTier produce a spoken message; anything else falls back to
// a local beep.
//
// Truncated or malformed posts are never rejected: a missing token reads as
// the empty string and yields tier 0.
package domain
