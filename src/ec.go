package uat978

/*------------------------------------------------------------------
 *
 * Purpose:   	Error correct FIS-B and ADS-B packet sample frames.
 *
 * Input:	Attribute headers and sample frames, usually piped from
 *		demod978.
 *
 * Outputs:	One line per decoded packet: '+' or '-', the payload as
 *		lowercase hex, then Reed-Solomon error counts, signal
 *		strength and arrival time.
 *
 * Description:	The interesting part is what happens when a packet does
 *		not decode as sliced.  At two samples per bit the slice
 *		points are rarely optimal, so the frame's neighbor
 *		samples are blended in at increasing percentages (the
 *		shift schedule) and the block retried.  Beyond that the
 *		whole window can be moved one sample later, a run of
 *		dead samples at a block tail can be snapped back to the
 *		zero-padding level, and for block 0 the known-constant
 *		uplink header bits can be forced.  Together these roughly
 *		double the yield on weak signals.
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// ECConfig carries the corrector's behavior switches.
type ECConfig struct {
	ShowFailedFisb   bool // print a comment line for failed FIS-B packets
	ShowFailedAdsb   bool // print a comment line for failed ADS-B packets
	ShowLowestLevels bool // report new lowest decodable levels on stderr

	SaveFailedDir string // save failed frames here for later reprocessing
	SaveRawDir    string // save every input frame here
	RawNameFormat string // strftime pattern for saved names; empty = epoch

	NoFixedBits     bool // disable the block 0 fixed-bit repair
	NoTrailingZeros bool // disable the trailing-zero repair

	Prefixes      [][]byte // ground-station first-six-byte candidates
	VerifyOverlay bool     // reject overlay decodes that contradict the overlay

	Dump978Format bool // emit legacy-style output lines

	Schedule []shiftStep // nil means defaultSchedule
}

// Corrector consumes frames and emits decoded lines.  Single threaded;
// all state is owned here.
type Corrector struct {
	in  io.Reader
	out io.Writer
	cfg ECConfig

	schedule []shiftStep
	rawNamer *strftime.Strftime

	// Lowest level seen to decode, per type.  Start higher than any
	// real level.
	lowestFisb float64
	lowestAdsb float64
}

func NewCorrector(in io.Reader, out io.Writer, cfg ECConfig) (*Corrector, error) {
	var c = &Corrector{
		in:         in,
		out:        out,
		cfg:        cfg,
		schedule:   cfg.Schedule,
		lowestFisb: 1e9,
		lowestAdsb: 1e9,
	}

	if c.schedule == nil {
		c.schedule = defaultSchedule
	}

	if cfg.RawNameFormat != "" {
		var namer, err = strftime.New(cfg.RawNameFormat)
		if err != nil {
			return nil, fmt.Errorf("timestamp format: %w", err)
		}
		c.rawNamer = namer
	}

	return c, nil
}

// Run processes frames until EOF.  Frame-level damage (short reads,
// bad headers) is fatal; packet-level decode failures never are.
func (c *Corrector) Run() error {
	for {
		var attrs, samples, raw, err = readFrame(c.in)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if err = c.processPacket(attrs, samples, raw); err != nil {
			return err
		}
	}
}

func (c *Corrector) processPacket(attrs Attributes, samples []int32, raw []byte) error {
	if c.cfg.SaveRawDir != "" {
		c.saveFrame(c.cfg.SaveRawDir, attrs, raw, "")
	}

	var line string
	var errsStr string
	var ok bool

	if attrs.Type == TypeFisb {
		ok, line, errsStr = c.processFisb(samples, attrs)
	} else {
		ok, line, errsStr = c.processAdsb(samples, attrs)
	}

	if ok {
		c.trackLowest(attrs)
		var _, err = fmt.Fprintln(c.out, line)
		return err
	}

	var show = (attrs.Type == TypeFisb && c.cfg.ShowFailedFisb) ||
		(attrs.Type == TypeAdsb && c.cfg.ShowFailedAdsb)
	if !show {
		return nil
	}

	var kind = "FIS-B"
	if attrs.Type == TypeAdsb {
		kind = "ADS-B"
	}

	var _, err = fmt.Fprintf(c.out, "#FAILED-%s %d/%s ss=%s/%s t=%s %s\n",
		kind, attrs.SyncErrors, errsStr,
		levelString(attrs.Level), rssiString(attrs.Level),
		timeString(attrs), attrs.String())
	if err != nil {
		return err
	}

	if c.cfg.SaveFailedDir != "" {
		// The per-block error counts make a FIS-B name tell which
		// blocks were close; an ADS-B name just carries the 98.  The
		// suffix also marks the frame as failed for saveFrame.
		c.saveFrame(c.cfg.SaveFailedDir, attrs, raw, "."+errsStr)
	}

	return nil
}

/*
 * FIS-B.
 */

var fisbZeroBlock = make([]byte, FisbDataBytes)

func (c *Corrector) processFisb(samples []int32, attrs Attributes) (bool, string, string) {
	var blocks = make([][]byte, FisbBlocks)
	var errs [FisbBlocks]int
	for i := range errs {
		errs[i] = ErrNotAttempted
	}

	// The plain window decodes nearly everything.
	var done = c.repairFisb(samples, 1, blocks, &errs)

	// Retry the stragglers one sample later: the sequence after the one
	// the sync word matched is the next most likely alignment.
	if !done {
		done = c.repairFisb(samples, 2, blocks, &errs)
	}

	// Last-resort repairs.
	if !done {
		done = c.repairFisbExtras(samples, blocks, &errs)
	}

	if !done {
		for i := range blocks {
			if blocks[i] == nil {
				errs[i] = ErrUncorrectable
			}
		}
		return false, "", fisbErrsString(errs)
	}

	return true, c.formatFisb(blocks, errs, attrs), ""
}

// repairFisb runs the shift schedule over every still-missing block at
// the given window offset.  The schedule index that corrected a block
// is carried to the next block as a starting hint; the whole packet
// went through one radio, so its blocks usually want the same mix.
func (c *Corrector) repairFisb(samples []int32, offset int, blocks [][]byte, errs *[FisbBlocks]int) bool {
	var hint = -1

	for b := 0; b < FisbBlocks; b++ {
		if blocks[b] != nil {
			continue
		}

		var bb = extractFisbBlock(samples, offset, b)

		if data, nErrors, idx, ok := trySchedule(rsFisb, bb, c.schedule, hint); ok {
			hint = idx
			blocks[b] = data
			errs[b] = nErrors

			// Empty uplink frames are very common; if block 0 says the
			// message ends here there is nothing worth decoding in the
			// remaining blocks.
			if b == 0 && block0EndsEarly(blocks) {
				return true
			}
			continue
		}

		// This block failed, but if block 0 is in hand the message may
		// still end before the failure matters.
		if block0EndsEarly(blocks) {
			return true
		}
	}

	return fisbComplete(blocks)
}

// repairFisbExtras applies the repair heuristics that go beyond
// re-slicing: trailing-zero snap for any block, fixed header bits and
// station prefix overlays for block 0.
func (c *Corrector) repairFisbExtras(samples []int32, blocks [][]byte, errs *[FisbBlocks]int) bool {
	for b := 0; b < FisbBlocks; b++ {
		if blocks[b] != nil {
			continue
		}

		if !c.cfg.NoTrailingZeros {
			if data, nErrors, ok := trailingZeroRepair(samples, b); ok {
				blocks[b] = data
				errs[b] = nErrors
				if b == 0 && block0EndsEarly(blocks) {
					return true
				}
				continue
			}
		}

		if b == 0 && !c.cfg.NoFixedBits {
			if data, nErrors, ok := c.fixedBitRepair(samples); ok {
				blocks[0] = data
				errs[0] = nErrors
				if block0EndsEarly(blocks) {
					return true
				}
			}
		}
	}

	return fisbComplete(blocks)
}

func fisbComplete(blocks [][]byte) bool {
	for _, b := range blocks {
		if b == nil {
			return false
		}
	}
	return true
}

// block0EndsEarly walks the UAT frames inside the decoded blocks we
// have so far, starting after the 8 byte uplink header.  Each frame
// leads with a 9 bit length; a zero length ends the message, and
// everything past it is zero fill on the air, so the remaining blocks
// can be filled in without decoding.  Blocks skipped this way keep
// their "not attempted" mark.
//
// An inconsistent walk (running past the decoded bytes without finding
// a terminator) proves nothing, and decoding continues normally.
func block0EndsEarly(blocks [][]byte) bool {
	if blocks[0] == nil {
		return false
	}

	// Consecutive decoded blocks only; a gap ends the walkable data.
	var data = make([]byte, 0, FisbBlocks*FisbDataBytes)
	for i := 0; i < FisbBlocks; i++ {
		if blocks[i] == nil {
			break
		}
		data = append(data, blocks[i]...)
	}

	var p = 8
	for p+1 < len(data) {
		var frameLen = int(data[p])<<1 | int(data[p+1])>>7

		if frameLen == 0 {
			var current = (p + 1) / FisbDataBytes
			for i := current + 1; i < FisbBlocks; i++ {
				blocks[i] = fisbZeroBlock
			}
			return true
		}

		p += frameLen + 2
	}

	return false
}

// trailingZeroRepair rescues blocks whose tail went quiet.  Uplink
// messages pad with zero bytes; when the transmitter ramps down early
// the pad samples hover around zero and slice randomly.  A trailing run
// of samples well under the block's mean magnitude is snapped to a firm
// zero-bit level and the block retried once.
func trailingZeroRepair(samples []int32, blockNum int) ([]byte, int, bool) {
	var bb = extractFisbBlock(samples, 1, blockNum)

	var sum float64
	for _, s := range bb.cur {
		sum += math.Abs(float64(s))
	}
	var mean = sum / float64(len(bb.cur))
	if mean == 0 {
		return nil, 0, false
	}

	var i = len(bb.cur) - 1
	for i >= 0 && math.Abs(float64(bb.cur[i])) < mean/4 {
		i--
	}

	var run = len(bb.cur) - 1 - i
	if run < 8 {
		// Not a dead tail, just noise.
		return nil, 0, false
	}

	var fixed = append([]int32(nil), bb.cur...)
	for j := i + 1; j < len(fixed); j++ {
		fixed[j] = -int32(mean)
	}

	return rsFisb.decode(packBits(fixed))
}

// fixedBitRepair forces the known-constant uplink header bits in block
// 0, then tries each configured ground-station prefix overlay.  With
// VerifyOverlay set, a decode that "succeeds" but corrects the overlay
// bytes away from the candidate is rejected: such a decode proves the
// candidate wrong, not the packet right.
func (c *Corrector) fixedBitRepair(samples []int32) ([]byte, int, bool) {
	var packed = packBits(extractFisbBlock(samples, 1, 0).cur)

	var cand = append([]byte(nil), packed...)
	if applyFixedBits(cand) {
		if data, nErrors, ok := rsFisb.decode(cand); ok {
			return data, nErrors, true
		}
	}

	for _, prefix := range c.cfg.Prefixes {
		cand = append(cand[:0], packed...)
		applyPrefix(cand, prefix)
		applyFixedBits(cand)

		if data, nErrors, ok := rsFisb.decode(cand); ok {
			if c.cfg.VerifyOverlay && !bytes.Equal(data[:UplinkPrefixBytes], prefix) {
				continue
			}
			return data, nErrors, true
		}
	}

	return nil, 0, false
}

/*
 * ADS-B.
 */

func (c *Corrector) processAdsb(samples []int32, attrs Attributes) (bool, string, string) {
	// Short messages lead with five zero bits (payload type 0).  Guess
	// from the raw slices, but try both codes: long outnumbers short
	// about ten to one and bit errors can fake either prefix.
	var short = true
	for x := 1; x < 10; x += 2 {
		if samples[x] >= 0 {
			short = false
			break
		}
	}

	var attempts = []struct {
		offset int
		short  bool
	}{
		{1, short},  // as sliced, guessed length
		{1, !short}, // the guess was wrong
		{2, !short}, // wrong guess and the later window
		{2, short},  // right guess, later window
	}

	for _, at := range attempts {
		var code = rsAdsbLong
		var numBytes = AdsbLongBytes
		if at.short {
			code = rsAdsbShort
			numBytes = AdsbShortBytes
		}

		var bb = extractAdsb(samples, at.offset, numBytes)

		if data, nErrors, _, ok := trySchedule(code, bb, c.schedule, -1); ok {
			// The decoded payload type has the final say on length.
			if !at.short && data[0]&0xf8 == 0 {
				data = data[:AdsbShortDataBytes]
			}
			return true, c.formatAdsb(data, nErrors, attrs), ""
		}
	}

	return false, "", strconv.Itoa(ErrUncorrectable)
}

/*
 * Output formatting.
 */

// rssiRef is the legacy full-scale power reference used to turn the
// running level into dB.  Kept bit-for-bit compatible with the tool
// this replaces; do not reinterpret.
const rssiRef = 32768.0 * 32768.0

func levelString(level uint32) string {
	var v = math.Round(float64(level)/1e6*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func rssiString(level uint32) string {
	if level == 0 {
		return "-99.9"
	}
	return strconv.FormatFloat(10*math.Log10(float64(level)/rssiRef), 'f', 1, 64)
}

func timeString(a Attributes) string {
	return fmt.Sprintf("%d.%03d", a.Secs, a.Usecs/1000)
}

func fisbErrsString(errs [FisbBlocks]int) string {
	var parts [FisbBlocks]string
	for i, e := range errs {
		parts[i] = fmt.Sprintf("%02d", e)
	}
	return strings.Join(parts[:], ":")
}

func (c *Corrector) formatFisb(blocks [][]byte, errs [FisbBlocks]int, attrs Attributes) string {
	var sb strings.Builder
	sb.WriteByte('+')
	for _, b := range blocks {
		sb.WriteString(hex.EncodeToString(b))
	}

	if c.cfg.Dump978Format {
		fmt.Fprintf(&sb, ";rssi=%s;t=%s;", rssiString(attrs.Level), timeString(attrs))
		return sb.String()
	}

	fmt.Fprintf(&sb, ";rs=%d/%s;ss=%s/%s;t=%s",
		attrs.SyncErrors, fisbErrsString(errs),
		levelString(attrs.Level), rssiString(attrs.Level),
		timeString(attrs))
	return sb.String()
}

func (c *Corrector) formatAdsb(data []byte, nErrors int, attrs Attributes) string {
	var sb strings.Builder
	sb.WriteByte('-')
	sb.WriteString(hex.EncodeToString(data))

	if c.cfg.Dump978Format {
		fmt.Fprintf(&sb, ";rssi=%s;t=%s;", rssiString(attrs.Level), timeString(attrs))
		return sb.String()
	}

	fmt.Fprintf(&sb, ";rs=%d/%d;ss=%s/%s;t=%s",
		attrs.SyncErrors, nErrors,
		levelString(attrs.Level), rssiString(attrs.Level),
		timeString(attrs))
	return sb.String()
}

/*
 * Side effects.
 */

func (c *Corrector) trackLowest(attrs Attributes) {
	if !c.cfg.ShowLowestLevels {
		return
	}

	var v = math.Round(float64(attrs.Level)/1e6*100) / 100

	if attrs.Type == TypeFisb {
		if v < c.lowestFisb {
			c.lowestFisb = v
			log.Info("lowest FIS-B signal", "level", v)
		}
	} else {
		if v < c.lowestAdsb {
			c.lowestAdsb = v
			log.Info("lowest ADS-B signal", "level", v)
		}
	}
}

// saveFrame writes one raw frame to dir.  Raw captures (empty suffix)
// are named <epoch>.<ms>.<type>.i32 and failed frames <attributes><suffix>.i32.
// A configured strftime pattern names both kinds <pattern>.<ms>.<type><suffix>.i32
// instead; Reprocess cannot read those names back.  Save failures are
// reported but never stop decoding.
func (c *Corrector) saveFrame(dir string, attrs Attributes, raw []byte, suffix string) {
	var name string
	if c.rawNamer != nil {
		var t = time.Unix(attrs.Secs, attrs.Usecs*1000)
		name = fmt.Sprintf("%s.%03d.%c%s.i32", c.rawNamer.FormatString(t), attrs.Usecs/1000, attrs.Type, suffix)
	} else if suffix != "" {
		// Failed frames keep the full attribute string so a reprocess
		// run can rebuild the header exactly.
		name = fmt.Sprintf("%s%s.i32", attrs.String(), suffix)
	} else {
		name = fmt.Sprintf("%d.%03d.%c.i32", attrs.Secs, attrs.Usecs/1000, attrs.Type)
	}

	if err := os.WriteFile(filepath.Join(dir, name), raw, 0o644); err != nil {
		log.Error("saving frame", "err", err)
	}
}

/*
 * Reprocessing saved frames.
 */

// Reprocess decodes every saved .i32 frame in dir, with failure
// reporting forced on.  Files whose names do not carry the five
// attribute fields (such as epoch-named raw captures) are skipped with a
// warning.  One pass, nothing is deleted, and nothing is re-saved: the
// point is to study stubborn packets against improved correction
// strategies.
func (c *Corrector) Reprocess(dir string) error {
	var files, err = filepath.Glob(filepath.Join(dir, "*.i32"))
	if err != nil {
		return err
	}

	c.cfg.ShowFailedFisb = true
	c.cfg.ShowFailedAdsb = true
	c.cfg.SaveFailedDir = ""
	c.cfg.SaveRawDir = ""

	for _, path := range files {
		var attrs, parseErr = attrsFromFilename(filepath.Base(path))
		if parseErr != nil {
			log.Warn("skipping file", "path", path, "err", parseErr)
			continue
		}

		var raw []byte
		if raw, err = os.ReadFile(path); err != nil {
			return err
		}

		var want = attrs.FrameInts() * 4
		if len(raw) < want {
			log.Warn("skipping short file", "path", path, "bytes", len(raw))
			continue
		}
		raw = raw[:want]

		if err = c.processPacket(attrs, samplesFromBytes(raw), raw); err != nil {
			return err
		}
	}

	return nil
}

// attrsFromFilename rebuilds a header from a saved frame's name, whose
// first five dot-separated fields are the attribute fields.
func attrsFromFilename(name string) (Attributes, error) {
	var fields = strings.Split(name, ".")
	if len(fields) < 5 {
		return Attributes{}, fmt.Errorf("file name %q does not carry attributes", name)
	}

	var padded = []byte(strings.Join(fields[:5], "."))
	for len(padded) < AttributeLen {
		padded = append(padded, ' ')
	}

	return parseAttributes(padded)
}
