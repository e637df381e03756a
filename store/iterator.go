package store

// tableIterator implements RecordIterator for a plain Table: walk buckets
// in order, within each entry visit slots 0..15, then follow next.
type tableIterator struct {
	table     *Table
	bucketIdx int
	recordIdx int
	curEntry  *entry
	curRecord recordBuffer
}

func (it *tableIterator) isEnd() bool {
	return it.bucketIdx == len(it.table.buckets)
}

func (it *tableIterator) moveToNextSlot() {
	it.recordIdx++
	if it.recordIdx >= entriesPerBucket {
		it.recordIdx = 0
		it.curEntry = it.curEntry.next.Load()
	}
}

func (it *tableIterator) MoveNext() bool {
	if it.isEnd() {
		return false
	}
	if it.curEntry != nil {
		it.moveToNextSlot()
	}

	for {
		if it.curEntry == nil {
			it.bucketIdx++
			it.recordIdx = 0
			if it.isEnd() {
				return false
			}
			it.curEntry = &it.table.buckets[it.bucketIdx]
		}

		data := it.curEntry.data[it.recordIdx].Load()
		if data != nil {
			it.curRecord = *data
			return true
		}
		it.moveToNextSlot()
	}
}

func (it *tableIterator) Key() []byte {
	return it.table.codec.decode(it.curRecord).key
}

func (it *tableIterator) Value() []byte {
	return it.table.codec.decode(it.curRecord).value
}

func (it *tableIterator) Reset() {
	it.bucketIdx = -1
	it.recordIdx = 0
	it.curEntry = nil
	it.curRecord = nil
}
