package dataflow

import "context"

// joinDriver is the full set of methods the Join driver needs from a
// joinNode[L, R, O], beyond the public erasedJoin contract.
type joinDriver interface {
	erasedJoin
	windowAssigner() WindowAssigner
	joinType() JoinType
}

// joinEntry tracks one buffered side item and whether it has matched
// anything on the other side yet, for outer-join unmatched-row emission
// when its window closes.
type joinEntry struct {
	item    any
	matched bool
}

type joinSideMsg struct {
	left bool
	item any
	err  error
}

// runJoinNode correlates items from a node's "left" and "right" inbound
// ports that fall in the same window, emitting one output per matching
// pair. Buffers are windowed (not unbounded): once a window closes per the
// assigner's watermark, its buffered items on both sides are discarded.
func runJoinNode(ctx context.Context, node Node, in []*transport, out *outgoing, mat *materializer) (int64, error) {
	join, ok := node.(joinDriver)
	if !ok {
		return 0, &EngineError{Message: "join node missing driver", Code: "BAD_JOIN", Kind: NodeInitError}
	}
	assigner := join.windowAssigner()

	var leftTransports, rightTransports []*transport
	for _, t := range in {
		if t.toPort == "right" {
			rightTransports = append(rightTransports, t)
		} else {
			leftTransports = append(leftTransports, t)
		}
	}

	// Join has two independent inbound ports, so a shared materializer would
	// interleave left and right items and replay them into the wrong side.
	// Each side gets its own, with the same configured cap.
	var leftMat, rightMat *materializer
	if mat != nil {
		leftMat = newMaterializer(mat.nodeID+":left", capOf(mat))
		rightMat = newMaterializer(mat.nodeID+":right", capOf(mat))
	}

	merged := make(chan joinSideMsg)
	feed := func(ts []*transport, isLeft bool, m *materializer) {
		next := mergedSource(ctx, ts, m)
		for {
			item, ok, err := next(ctx)
			if err != nil {
				select {
				case merged <- joinSideMsg{left: isLeft, err: err}:
				case <-ctx.Done():
				}
				return
			}
			if !ok {
				select {
				case merged <- joinSideMsg{left: isLeft, item: nil}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case merged <- joinSideMsg{left: isLeft, item: item}:
			case <-ctx.Done():
				return
			}
		}
	}
	activeSides := 0
	if len(leftTransports) > 0 {
		activeSides++
		go feed(leftTransports, true, leftMat)
	}
	if len(rightTransports) > 0 {
		activeSides++
		go feed(rightTransports, false, rightMat)
	}
	if activeSides == 0 {
		return 0, nil
	}

	leftBuf := make(map[Window][]*joinEntry)
	rightBuf := make(map[Window][]*joinEntry)
	joinType := join.joinType()
	var count int64

	emit := func(outputs any) error {
		list, _ := outputs.([]any)
		for _, o := range list {
			if err := out.sendAll(ctx, o); err != nil {
				return err
			}
			count++
		}
		return nil
	}
	emitOne := func(output any, err error) error {
		if err != nil {
			return &RunFailure{NodeID: node.ID(), Kind: ItemProcessingError, Cause: err, CorrelationID: CorrelationID(ctx)}
		}
		if err := out.sendAll(ctx, output); err != nil {
			return err
		}
		count++
		return nil
	}

	// closeWindow emits unmatched rows for an expiring window, per joinType,
	// before its buffers are discarded.
	closeWindow := func(w Window) error {
		if joinType == JoinLeftOuter || joinType == JoinFullOuter {
			for _, e := range leftBuf[w] {
				if e.matched {
					continue
				}
				row, err := join.joinLeftUnmatchedErased(ctx, e.item)
				if err := emitOne(row, err); err != nil {
					return err
				}
			}
		}
		if joinType == JoinRightOuter || joinType == JoinFullOuter {
			for _, e := range rightBuf[w] {
				if e.matched {
					continue
				}
				row, err := join.joinRightUnmatchedErased(ctx, e.item)
				if err := emitOne(row, err); err != nil {
					return err
				}
			}
		}
		delete(leftBuf, w)
		delete(rightBuf, w)
		return nil
	}

	done := 0
	for done < activeSides {
		select {
		case msg, ok := <-merged:
			if !ok {
				return count, nil
			}
			if msg.err != nil {
				return count, msg.err
			}
			if msg.item == nil {
				done++
				continue
			}
			ts := eventTimeOf(msg.item)
			windows := assigner.AssignWindows(ts)
			for _, w := range windows {
				if msg.left {
					entry := &joinEntry{item: msg.item}
					opposite := rightBuf[w]
					if len(opposite) > 0 {
						entry.matched = true
						for _, o := range opposite {
							o.matched = true
						}
					}
					leftBuf[w] = append(leftBuf[w], entry)
					rightItems := make([]any, len(opposite))
					for i, o := range opposite {
						rightItems[i] = o.item
					}
					outputs, err := join.joinLeftErased(ctx, msg.item, rightItems)
					if err != nil {
						return count, &RunFailure{NodeID: node.ID(), Kind: ItemProcessingError, Cause: err, CorrelationID: CorrelationID(ctx)}
					}
					if err := emit(outputs); err != nil {
						return count, err
					}
				} else {
					entry := &joinEntry{item: msg.item}
					opposite := leftBuf[w]
					if len(opposite) > 0 {
						entry.matched = true
						for _, o := range opposite {
							o.matched = true
						}
					}
					rightBuf[w] = append(rightBuf[w], entry)
					leftItems := make([]any, len(opposite))
					for i, o := range opposite {
						leftItems[i] = o.item
					}
					outputs, err := join.joinRightErased(ctx, msg.item, leftItems)
					if err != nil {
						return count, &RunFailure{NodeID: node.ID(), Kind: ItemProcessingError, Cause: err, CorrelationID: CorrelationID(ctx)}
					}
					if err := emit(outputs); err != nil {
						return count, err
					}
				}
			}
			for _, w := range assigner.AdvanceWatermark(ts) {
				if err := closeWindow(w); err != nil {
					return count, err
				}
			}
		case <-ctx.Done():
			return count, ctx.Err()
		}
	}
	return count, nil
}
